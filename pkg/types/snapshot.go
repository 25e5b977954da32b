package types

// Snapshot:
//   version: number
//   round_id: string
//   lumberjackPosition: "left" | "right"
//   branches: { side: "left" | "right" | "none", level: number }[5] // [1] threatens the player
//   time_left: number
//   score: number
//   level: number
//   game_active: boolean
//   reason?: "hit_branch" | "timeout"
//   top_score: number
//
// Entry:
//   telegramId, username, firstName, lastName, photo_url, score, rank
