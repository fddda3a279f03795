package protocol

import "bytes"

// LineTerminator ends every command line sent to the device.
const LineTerminator = '\n'

// CommandLine returns text with exactly one line terminator appended.
// An empty text yields a lone terminator.
func CommandLine(text string) []byte {
	line := make([]byte, 0, len(text)+1)
	line = append(line, text...)
	return append(line, LineTerminator)
}

// EncodeCommand builds the ReqCommand payload for text.
//
// Payload structure:
//
//	[TEXT...]['\n'][NUL]
//
// The firmware expects the C string framing of the original host tools, so
// the payload length is len(line)+1.
func EncodeCommand(text string) []byte {
	return append(CommandLine(text), 0)
}

// DecodeCommand extracts the command line from a ReqCommand payload,
// dropping the NUL sentinel and anything after it.
func DecodeCommand(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return string(payload)
}

// TrimOutput returns the console text held in a ReqReadOutput buffer.
// The device pads unused space with NUL bytes.
func TrimOutput(buf []byte) []byte {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return buf[:i]
	}
	return buf
}
