// Package accuracy 提供识别文本归一化与错误率计算
package accuracy

import (
	"strings"
	"unicode"
)

// Normalize 归一化识别文本：转小写，去掉标点与符号，合并空白
func Normalize(text string) string {
	lowered := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
