// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

package charset

const (
	// esc selects the extension table for the following septet.
	esc = 0x1b
	// currency is the default alphabet position of the currency sign.
	currency = 0x24
)

// defaultAlphabet is the GSM 03.38 default alphabet, indexed by septet.
//
// The escape position holds NBSP, which is never mapped in either direction.
// The currency position decodes as the Euro sign, but the Euro sign is always
// encoded via the extension table.
var defaultAlphabet = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', '\u00a0', 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '€', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

// extension maps the septet following an escape to its character.
var extension = map[byte]rune{
	0x0a: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2f: '\\',
	0x3c: '[',
	0x3d: '~',
	0x3e: ']',
	0x40: '|',
	0x65: '€',
}

// closeMatch maps ISO-8859-15 characters with no GSM equivalent to the
// nearest looking GSM septet.
//
// Only used when encoding.
var closeMatch = map[byte]byte{
	0x60: 0x27, // ` -> '
	0xa0: 0x20, // nbsp
	0xa2: 0x63, // ¢ -> c
	0xa6: 0x53, // Š -> S
	0xa8: 0x73, // š -> s
	0xa9: 0x43, // © -> C
	0xaa: 0x61, // ª -> a
	0xab: 0x3c, // « -> <
	0xac: 0x2d, // ¬ -> -
	0xad: 0x2d, // soft hyphen
	0xae: 0x52, // ® -> R
	0xaf: 0x2d, // ¯ -> -
	0xb0: 0x6f, // ° -> o
	0xb1: 0x2b, // ± -> +
	0xb2: 0x32, // ² -> 2
	0xb3: 0x33, // ³ -> 3
	0xb4: 0x5a, // Ž -> Z
	0xb5: 0x75, // µ -> u
	0xb6: 0x49, // ¶ -> I
	0xb7: 0x2e, // · -> .
	0xb8: 0x7a, // ž -> z
	0xb9: 0x31, // ¹ -> 1
	0xba: 0x6f, // º -> o
	0xbb: 0x3e, // » -> >
	0xbc: 0x4f, // Œ -> O
	0xbd: 0x6f, // œ -> o
	0xbe: 0x59, // Ÿ -> Y
	0xc0: 0x41, // À -> A
	0xc1: 0x41, // Á -> A
	0xc2: 0x41, // Â -> A
	0xc3: 0x41, // Ã -> A
	0xc7: 0x09, // Ç
	0xc8: 0x45, // È -> E
	0xca: 0x45, // Ê -> E
	0xcb: 0x45, // Ë -> E
	0xcc: 0x49, // Ì -> I
	0xcd: 0x49, // Í -> I
	0xce: 0x49, // Î -> I
	0xcf: 0x49, // Ï -> I
	0xd0: 0x44, // Ð -> D
	0xd2: 0x4f, // Ò -> O
	0xd3: 0x4f, // Ó -> O
	0xd4: 0x4f, // Ô -> O
	0xd5: 0x4f, // Õ -> O
	0xd7: 0x78, // × -> x
	0xd9: 0x55, // Ù -> U
	0xda: 0x55, // Ú -> U
	0xdb: 0x55, // Û -> U
	0xdd: 0x59, // Ý -> Y
	0xde: 0x62, // Þ -> b
	0xe1: 0x61, // á -> a
	0xe2: 0x61, // â -> a
	0xe3: 0x61, // ã -> a
	0xe7: 0x09, // ç -> Ç
	0xea: 0x65, // ê -> e
	0xeb: 0x65, // ë -> e
	0xed: 0x69, // í -> i
	0xee: 0x69, // î -> i
	0xef: 0x69, // ï -> i
	0xf0: 0x6f, // ð -> o
	0xf3: 0x6f, // ó -> o
	0xf4: 0x6f, // ô -> o
	0xf5: 0x6f, // õ -> o
	0xf7: 0x2f, // ÷ -> /
	0xfa: 0x75, // ú -> u
	0xfb: 0x75, // û -> u
	0xfd: 0x79, // ý -> y
	0xfe: 0x62, // þ -> b
	0xff: 0x79, // ÿ -> y
}

// reverse lookups, built once.
var (
	runeToDefault   map[rune]byte
	runeToExtension map[rune]byte
)

func init() {
	runeToDefault = make(map[rune]byte, len(defaultAlphabet))
	for i, r := range defaultAlphabet {
		if i == esc || i == currency {
			continue
		}
		runeToDefault[r] = byte(i)
	}
	runeToExtension = make(map[rune]byte, len(extension))
	for k, v := range extension {
		runeToExtension[v] = k
	}
}
