// Package transfer retrieves the release image over BitTorrent and checks
// local copies against the piece hashes of a torrent descriptor.
//
// The client is a one-shot downloader: uploads are throttled to a trickle
// while downloading and the torrent is dropped the moment the payload is
// complete, so the process never seeds.
package transfer
