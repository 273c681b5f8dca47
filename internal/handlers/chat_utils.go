package handlers

import (
	"encoding/json"
	"strings"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
)

// roomIDFrom accepts either "room-id" or {"roomId": "room-id"}.
func roomIDFrom(data json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(data, &room); err == nil {
		return strings.TrimSpace(room), nil
	}

	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", apperr.InvalidInput("room id is required")
	}
	return strings.TrimSpace(obj.RoomID), nil
}

func errorData(err error) map[string]any {
	return map[string]any{
		"error": apperr.MessageOf(err),
		"code":  apperr.KindOf(err),
	}
}
