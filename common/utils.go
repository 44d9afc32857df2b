package common

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/rs/zerolog/log"
)

// usernamePattern is the accepted public username shape after prefix stripping.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{4,31}$`)

var linkPrefixes = []string{
	"https://t.me/",
	"http://t.me/",
	"https://telegram.me/",
	"http://telegram.me/",
	"t.me/",
	"telegram.me/",
	"@",
}

// GenerateCrawlID generates a unique identifier based on the current timestamp.
// The identifier is formatted as a string in the "YYYYMMDDHHMMSS" format.
func GenerateCrawlID() string {
	return time.Now().Format("20060102150405")
}

// NormalizeUsername strips the accepted link prefixes from a channel
// reference and validates the remaining username. It returns false when the
// reference is not a valid public username.
func NormalizeUsername(ref string) (string, bool) {
	s := strings.TrimSpace(ref)
	for _, p := range linkPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
			break
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if !usernamePattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseChannelList reads a newline-delimited channel list. Blank lines and
// lines starting with '#' are ignored; lines that do not hold a valid
// username are dropped silently. Order is preserved.
func ParseChannelList(r io.Reader) ([]string, error) {
	entries, err := parseLines(r)
	if err != nil {
		return nil, err
	}
	usernames := make([]string, 0, len(entries))
	for _, e := range entries {
		usernames = append(usernames, e.username)
	}
	return usernames, nil
}

// ParseWorklist reads a worklist in the channel-list format. A line may carry
// a message payload after a tab character: "username<TAB>text".
func ParseWorklist(r io.Reader, source string) ([]model.ActionTarget, error) {
	entries, err := parseLines(r)
	if err != nil {
		return nil, err
	}
	targets := make([]model.ActionTarget, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, model.ActionTarget{
			Channel: model.ChannelRef{Username: e.username},
			Payload: e.payload,
			Source:  source,
		})
	}
	return targets, nil
}

type listEntry struct {
	username string
	payload  string
}

func parseLines(r io.Reader) ([]listEntry, error) {
	var entries []listEntry
	dropped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ref, payload, _ := strings.Cut(line, "\t")
		username, ok := NormalizeUsername(ref)
		if !ok {
			dropped++
			continue
		}
		entries = append(entries, listEntry{username: username, payload: strings.TrimSpace(payload)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channel list: %w", err)
	}

	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("Dropped invalid channel references")
	}
	return entries, nil
}

// ReadChannelsFromFile reads a channel list from filename.
func ReadChannelsFromFile(filename string) ([]string, error) {
	log.Debug().Str("filename", filename).Msg("Reading channels from file")

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	channels, err := ParseChannelList(f)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("channel_count", len(channels)).Msg("Channels read from file")
	return channels, nil
}

// ReadWorklistFromFile reads a worklist from filename, downloading it first
// when filename is an http(s) URL.
func ReadWorklistFromFile(filename string) ([]model.ActionTarget, error) {
	path := filename
	if strings.HasPrefix(filename, "http://") || strings.HasPrefix(filename, "https://") {
		downloaded, err := DownloadURLFile(filename)
		if err != nil {
			return nil, err
		}
		defer os.Remove(downloaded)
		path = downloaded
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	return ParseWorklist(f, "file:"+filepath.Base(filename))
}

// DownloadURLFile downloads a file from a URL and saves it to a temporary location.
// Returns the path to the downloaded file and any error encountered.
func DownloadURLFile(url string) (string, error) {
	log.Info().Str("url", url).Msg("Downloading worklist file")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 Telegram-Outreach/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	out, err := os.CreateTemp("", "worklist_*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write to file: %w", err)
	}

	log.Info().Str("file", out.Name()).Msg("Worklist file downloaded successfully")
	return out.Name(), nil
}
