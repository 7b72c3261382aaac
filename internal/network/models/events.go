package models

import "time"

// PromotionEvent is emitted once per rank increase.
type PromotionEvent struct {
	NodeID      NodeID    `json:"node_id"`
	Code        Code      `json:"code"`
	OldRank     int       `json:"old_rank"`
	NewRank     int       `json:"new_rank"`
	NewRankName string    `json:"new_rank_name"`
	At          time.Time `json:"at"`
}
