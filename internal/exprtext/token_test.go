// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package exprtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_tokenTypeString(t *testing.T) {
	for typ, s := range tokenTypeToString {
		assert.Equal(t, s, typ.String())
	}
	t.Run("unknown-tokenType", func(t *testing.T) {
		typ := tokenType(-1)
		assert.Equal(t, tokenTypeToString[unknownToken], typ.String())
	})
}
