package usecase

import "strings"

// Marker separates the user's notes (above) from the generated reply (below)
// in every AI draft.
const Marker = "✂️"

// NoInstruction stands in for an empty rework request.
const NoInstruction = "(no specific instruction provided)"

// LastReworkWarning heads the draft produced by the final automatic rework.
const LastReworkWarning = "⚠️ This is the last automatic rework. Further changes must be made manually.\n\n"

// WrapWithMarker puts an empty notes region and the marker above body.
func WrapWithMarker(body string) string {
	return "\n\n" + Marker + "\n\n" + body
}

// ExtractInstruction splits a draft at the marker. Without a marker the
// whole body is the draft and the instruction is empty.
func ExtractInstruction(body string) (instruction, draft string) {
	above, below, found := strings.Cut(body, Marker)
	if !found {
		return "", body
	}
	return strings.TrimSpace(above), strings.TrimSpace(below)
}
