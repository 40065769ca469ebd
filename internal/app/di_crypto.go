package app

import (
	cryptoService "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/service"
)

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KeyGenerator returns the group key generator.
func (c *Container) KeyGenerator() cryptoService.KeyGenerator {
	c.keyGeneratorInit.Do(func() {
		c.keyGenerator = cryptoService.NewKeyGenerator(nil)
	})
	return c.keyGenerator
}

// KeyTransport returns the codec that wraps group keys for members.
func (c *Container) KeyTransport() cryptoService.KeyTransport {
	c.keyTransportInit.Do(func() {
		c.keyTransport = cryptoService.NewKeyTransport(c.AEADManager())
	})
	return c.keyTransport
}

// KMSService returns the KMS service used to seal the identity private key.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}
