package models

// JoinResult is returned to the caller of a successful join.
type JoinResult struct {
	NodeID   NodeID `json:"node_id"`
	Code     Code   `json:"code"`
	Rank     int    `json:"rank"`
	RankName string `json:"rank_name"`
}

// Status is the read model behind getStatus.
type Status struct {
	NodeID         NodeID  `json:"node_id"`
	Code           Code    `json:"code"`
	Rank           int     `json:"rank"`
	RankName       string  `json:"rank_name"`
	DirectCount    int64   `json:"direct_count"`
	TeamCount      int64   `json:"team_count"`
	NextRank       *int    `json:"next_rank,omitempty"`
	NextRankName   string  `json:"next_rank_name,omitempty"`
	ProgressToNext float64 `json:"progress_to_next"`
}
