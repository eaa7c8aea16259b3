// Package services implements the remote collaborators of a channel migration.
//
// # Interfaces
//
// The pipeline only depends on four small interfaces:
//   - [CatalogClient] : channel metadata and paginated item listings at the source
//   - [AssetClient] : a streaming download of one item's media
//   - [AuthClient] : short-lived destination access tokens
//   - [ImportClient] : item submission at the destination
//
// # YouTube Implementation
//
// [YouTubeService] talks to the YouTube Data API v3 with an API key. Channel metadata comes from the channels
// endpoint; the uploads playlist is then walked through playlistItems until no next page token is returned.
//
// # PeerTube Implementation
//
// [PeerTubeService] fetches the instance's local OAuth client, then exchanges the account credentials for a
// token with the password grant. Items are submitted either as a multipart upload of a staged file or as a
// URL import that the instance performs itself.
//
// # Asset Download
//
// [YTDLPAssetClient] runs yt-dlp and streams its stdout; [HTTPAssetClient] fetches direct media URLs.
//
// # Error Handling
//
// Non-2xx responses are returned as [*shared.StatusError] so callers can classify them with
// [shared.IsTransient] and [shared.IsUnauthorized].
package services
