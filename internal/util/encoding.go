package util

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// 交换机 banner/description 中常见的单字节编码，按优先级尝试
var consoleEncodings = []encoding.Encoding{
	charmap.Windows1254,
	charmap.ISO8859_9,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// EnsureUTF8Bytes 将控制台输出转换为 UTF-8 字符串
// 已是合法 UTF-8 时原样返回；末尾被截断的多字节字符保留给下一次读取前不做解码
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	if head := TrimIncompleteRune(b); len(head) < len(b) && utf8.Valid(head) {
		return string(head)
	}
	for _, enc := range consoleEncodings {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

// EnsureUTF8 字符串版本
func EnsureUTF8(s string) string {
	return EnsureUTF8Bytes([]byte(s))
}

// TrimIncompleteRune 去掉末尾不完整的 UTF-8 序列（最多 3 字节）
func TrimIncompleteRune(b []byte) []byte {
	for i := 1; i <= 3 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < 0x80 {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}
