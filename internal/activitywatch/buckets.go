package activitywatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ErrBucketNotFound is returned when no bucket matches a required watcher.
var ErrBucketNotFound = errors.New("activitywatch bucket not found")

const (
	windowPrefix = "aw-watcher-window_"
	afkPrefix    = "aw-watcher-afk_"
	phoneMarker  = "ios-"
)

// BucketInfo is the metadata the server keeps for a bucket.
type BucketInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Client   string `json:"client"`
	Hostname string `json:"hostname"`
}

// Sources are the resolved bucket ids a sync reads from. Phone buckets are
// optional and empty when absent.
type Sources struct {
	Window      string
	AFK         string
	PhoneWindow string
	PhoneAFK    string
}

// Buckets lists every bucket on the server keyed by id.
func (c *Client) Buckets(ctx context.Context) (map[string]BucketInfo, error) {
	body, err := c.request(ctx, http.MethodGet, "/buckets/", nil)
	if err != nil {
		return nil, err
	}
	buckets := map[string]BucketInfo{}
	if err := json.Unmarshal(body, &buckets); err != nil {
		return nil, fmt.Errorf("parsing bucket list: %w", err)
	}
	return buckets, nil
}

// ResolveSources finds the desktop window and afk buckets for this host,
// plus any phone buckets. A missing desktop window bucket is an error.
func (c *Client) ResolveSources(ctx context.Context) (Sources, error) {
	buckets, err := c.Buckets(ctx)
	if err != nil {
		return Sources{}, err
	}
	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var src Sources
	hosts := c.hostnames()
	if src.Window = findDesktopBucket(ids, windowPrefix, hosts); src.Window == "" {
		return Sources{}, fmt.Errorf("%w: %s<host>", ErrBucketNotFound, windowPrefix)
	}
	src.AFK = findDesktopBucket(ids, afkPrefix, hosts)
	src.PhoneWindow = findPrefix(ids, windowPrefix+phoneMarker)
	src.PhoneAFK = findPrefix(ids, afkPrefix+phoneMarker)
	return src, nil
}

// findDesktopBucket prefers a bucket ending in one of hosts and falls back
// to the first non-phone bucket with prefix. ids must be sorted.
func findDesktopBucket(ids []string, prefix string, hosts []string) string {
	desktop := func(id string) bool {
		return strings.HasPrefix(id, prefix) && !strings.HasPrefix(id, prefix+phoneMarker)
	}
	for _, host := range hosts {
		if id := prefix + host; contains(ids, id) {
			return id
		}
	}
	for _, id := range ids {
		if !desktop(id) {
			continue
		}
		for _, host := range hosts {
			if strings.HasSuffix(id, host) {
				return id
			}
		}
	}
	for _, id := range ids {
		if desktop(id) {
			return id
		}
	}
	return ""
}

func findPrefix(ids []string, prefix string) string {
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			return id
		}
	}
	return ""
}

func contains(ids []string, want string) bool {
	i := sort.SearchStrings(ids, want)
	return i < len(ids) && ids[i] == want
}

// EnsureBucket creates bucket id if the server does not have it yet.
func (c *Client) EnsureBucket(ctx context.Context, id, bucketType, client string) error {
	buckets, err := c.Buckets(ctx)
	if err != nil {
		return err
	}
	if _, ok := buckets[id]; ok {
		return nil
	}
	c.Logger.Info("creating bucket", "bucket", id)
	payload := map[string]string{"client": client, "type": bucketType, "hostname": c.Hostname}
	if _, err := c.request(ctx, http.MethodPost, "/buckets/"+url.PathEscape(id), payload); err != nil {
		return fmt.Errorf("creating bucket %s: %w", id, err)
	}
	return nil
}
