// Command algaejit inspects SPIR-V modules prepared for algae injection.
//
//	algaejit dis shader.spv
//	algaejit reflect shader.spv --function "test_shader::injector"
//	algaejit hash coord offset
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
