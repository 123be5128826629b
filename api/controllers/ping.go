package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// TerminalPing lets a terminal UI check it can reach its own routes.
func TerminalPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":      "terminal",
			"status":     "ok",
			"terminalId": middleware.TerminalIDFromContext(r.Context()),
		})
	}
}
