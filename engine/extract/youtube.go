package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// YouTubeExtractor derives a video id from a canonical YouTube URL shape and
// fetches its transcript as a single Item.
type YouTubeExtractor struct {
	Transcripts TranscriptFetcher
}

var shortVideoID = regexp.MustCompile(`^[\w-]{6,}$`)

// Extract implements Extractor. An unrecoverable video id yields an empty
// result and no error, matching the spec's boundary case for invalid URLs.
func (e *YouTubeExtractor) Extract(ctx context.Context, job Job) ([]Item, error) {
	videoID := videoIDFromURL(job.URL)
	if videoID == "" {
		return nil, nil
	}

	text, err := e.Transcripts.Transcript(ctx, videoID)
	if err != nil || text == "" {
		return nil, nil
	}

	return []Item{{Content: text, Reference: job.URL}}, nil
}

// videoIDFromURL recovers a video id from the canonical YouTube URL shapes:
// youtu.be/<id>, youtube.com/watch?v=<id>, /embed/<id>, /v/<id>.
func videoIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(host, "youtu.be"):
		id := strings.Trim(u.Path, "/")
		if shortVideoID.MatchString(id) {
			return id
		}
	case strings.Contains(host, "youtube.com"):
		if id := u.Query().Get("v"); shortVideoID.MatchString(id) {
			return id
		}
		for _, prefix := range []string{"/embed/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id := strings.TrimPrefix(u.Path, prefix)
				id = strings.SplitN(id, "/", 2)[0]
				if shortVideoID.MatchString(id) {
					return id
				}
			}
		}
	}
	return ""
}
