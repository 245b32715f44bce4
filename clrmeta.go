package clrmeta

import "github.com/wippyai/clrmeta/metadata"

// Open loads the module at path into a new host with default options.
func Open(path string) (*metadata.Module, error) {
	return metadata.NewHost(metadata.DefaultOptions()).Open(path)
}
