package vocab

var builtinTokens = []string{
	DefaultEOS,
	"the", "a", "cat", "dog", "bird", "sat", "ran", "flew", "on", "under",
	"over", "mat", "tree", "roof", "quickly", "slowly", "and", "then", "it", "slept",
	"barked", "sang", "was", "happy", "tired", "small", "big", "red", "blue", ".",
}

// Builtin returns a small word-level vocabulary for demos and tests.
func Builtin() *Vocab {
	v, err := New(builtinTokens, DefaultEOS)
	if err != nil {
		panic(err)
	}
	return v
}
