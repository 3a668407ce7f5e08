package spvfi

// SimpleHash hashes a variable name into the 32 bit identifier shaders use
// to tag parameters. Each byte is shifted into one of the four bytes of the
// word, cycling with the byte's position, and XORed into the result.
// Shaders must compute the same value at compile time.
func SimpleHash(name string) uint32 {
	var val uint32
	for i := 0; i < len(name); i++ {
		val ^= uint32(name[i]) << ((i % 4) * 8)
	}
	return val
}
