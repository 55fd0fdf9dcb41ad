// package models defines the data model for the playlist interchange
// pipeline.
//
// Two kinds of types live here. Canonical value types (Song, Playlist,
// MatchCandidate, SongMatchResult) are plain structs passed between the
// codec, matcher and controllers; a Song is immutable once parsed and
// resolving it produces a new value. Persistent records (ImportJob,
// ExportJob, DownloadJob) implement the Model interface and are owned
// exclusively by their controller.
package models
