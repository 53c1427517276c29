package imaging

import "encoding/base64"

// DataURI embeds data inline as data:<mime>;base64,<payload>.
func DataURI(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
