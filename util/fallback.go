package util

import (
	"net/http"

	"github.com/go-chi/render"
)

// FallbackMessage is sent when a handler fails in a way nothing else
// answered for.
const FallbackMessage = "Something went wrong. Please try again later."

// FallbackEvent writes a generic JSON error envelope. The status line may
// already be on the wire, in which case only the body is attempted.
func FallbackEvent(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"message": FallbackMessage})
}
