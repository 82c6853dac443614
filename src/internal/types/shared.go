package types

// ClientConfig contains what the process manager needs to spawn a language server
type ClientConfig struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        []string
}
