package models

import "github.com/google/uuid"

// GameActionRecord holds the minimal info needed by the historian to replay a round.
type GameActionRecord struct {
	GameID        int64                  `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   uuid.UUID              `json:"actor_user_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}
