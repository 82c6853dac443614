package types

// LSP protocol lifecycle methods
const (
	// MethodInitialize is sent as the first request from client to server
	MethodInitialize = "initialize"
	// MethodInitialized is sent from client to server after the initialize response
	MethodInitialized = "initialized"
	// MethodShutdown is sent from client to server to shutdown the server
	MethodShutdown = "shutdown"
	// MethodExit is sent from client to server to exit the server process
	MethodExit = "exit"
)

// LSP document synchronization methods
const (
	// MethodTextDocumentDidOpen is sent when a document is opened
	MethodTextDocumentDidOpen = "textDocument/didOpen"
	// MethodTextDocumentDidChange carries the full text of a changed document
	MethodTextDocumentDidChange = "textDocument/didChange"
	// MethodTextDocumentPublishDiagnostics is pushed by the server with a document's diagnostics
	MethodTextDocumentPublishDiagnostics = "textDocument/publishDiagnostics"
)

// LSP language feature methods
const (
	// MethodTextDocumentDefinition provides go-to-definition functionality
	MethodTextDocumentDefinition = "textDocument/definition"
	// MethodTextDocumentReferences finds all references to a symbol
	MethodTextDocumentReferences = "textDocument/references"
	// MethodTextDocumentCompletion provides auto-completion suggestions
	MethodTextDocumentCompletion = "textDocument/completion"
	// MethodTextDocumentSemanticTokensFull returns semantic tokens for a whole document
	MethodTextDocumentSemanticTokensFull = "textDocument/semanticTokens/full"
)
