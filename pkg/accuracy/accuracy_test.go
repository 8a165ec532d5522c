package accuracy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":                  "hello world",
		"  The   coffee\tis\nhot.  ":      "the coffee is hot",
		"It's 5 o'clock -- drink up!":    "its 5 oclock drink up",
		"":                               "",
		"?!.,":                           "",
		"Café crème, s'il vous plaît":    "café crème sil vous plaît",
		"already normalized text":        "already normalized text",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"  Mixed CASE\twith\tTABS & symbols #1 ",
		"Ünïcödé — dashes … and “quotes”",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
	assert.Equal(t, Normalize("Hello, World!"), Normalize("hello world"))
}

func TestWER(t *testing.T) {
	ref := "the quick brown fox jumps over the lazy dog"

	wer, err := WER(ref, ref)
	require.NoError(t, err)
	assert.Equal(t, 0.0, wer)

	// 一次替换
	wer, err = WER(ref, "the quick brown fox jumps over the lazy cat")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/9.0, wer, 1e-9)

	// 一次删除加一次插入
	wer, err = WER("a b c d", "a c d e")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, wer, 1e-9)

	// 空识别结果等于全部删除
	wer, err = WER("one two three", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, wer)
}

func TestWERCanExceedOne(t *testing.T) {
	wer, err := WER("hello", "hello there general kenobi")
	require.NoError(t, err)
	assert.Equal(t, 3.0, wer)
}

func TestCER(t *testing.T) {
	cer, err := CER("kitten", "sitting")
	require.NoError(t, err)
	assert.InDelta(t, 3.0/6.0, cer, 1e-9)

	cer, err = CER("ab cd", "ab cd")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cer)

	// 空格也计入字符
	cer, err = CER("ab cd", "abcd")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/5.0, cer, 1e-9)
}

func TestEmptyReference(t *testing.T) {
	_, err := WER("", "anything")
	assert.ErrorIs(t, err, ErrEmptyReference)

	_, err = CER("", "")
	assert.ErrorIs(t, err, ErrEmptyReference)

	_, _, err = Rates("   ", "x")
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestRates(t *testing.T) {
	ref := Normalize("The coffee is hot.")
	hyp := Normalize("The coffee's hot!")

	wer, cer, err := Rates(ref, hyp)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, wer, 1e-9) // coffees 替换 coffee，is 被删除
	assert.Greater(t, cer, 0.0)
	assert.Less(t, cer, wer)
}
