package types

// Client -> Server (websocket, /ws?player=<id>)
// Move:
//   direction: "left" | "right"
//
// TimeOut: {}

// Server -> Client
// StateSnapshot:
//   version: number
//   state: Snapshot (see snapshot.go)
//
// GameOver:
//   game_over: { final_score: number, top_score: number, reason: "hit_branch" | "timeout", eventId?: string }
//
// Error:
//   error: string

// HTTP
// POST /api/start     { eventId?: string }              -> { status: "started", game_state: Snapshot }
// POST /api/move      { direction } | { answer: bool }  -> { status: "continue", game_state } | GameOver body
// POST /api/timeOut   {}                                -> { status: "game_over", final_score, top_score, reason }
// GET  /api/state                                       -> Snapshot
// GET  /api/leaderboard?eventId=                        -> { top: Entry[], currentUser: Entry | null }
// GET  /api/events                                      -> { events: Event[] }
