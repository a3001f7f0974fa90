// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package multifile

import (
	"fmt"
	"testing"
)

func BenchmarkChainExtract(b *testing.B) {
	ch := NewChain()
	for layer := 0; layer < 4; layer++ {
		w := NewWriter()
		for i := 0; i < 64; i++ {
			name := fmt.Sprintf("assets/model_%02d_%02d.egg", layer, i)
			if err := w.Add(name, []byte(name)); err != nil {
				b.Fatal(err)
			}
		}
		raw, err := w.Write()
		if err != nil {
			b.Fatal(err)
		}
		archive, err := Open(raw)
		if err != nil {
			b.Fatal(err)
		}
		ch.Mount(archive)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ch.Extract("assets/model_03_17.egg"); err != nil {
			b.Fatal(err)
		}
	}
}
