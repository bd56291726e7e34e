package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/yungbote/chatstream-backend/internal/streamclient"
)

// renderer prints a message as it streams. When the new content extends what
// is on screen only the suffix is written; otherwise the whole content is
// reprinted under a marker, since every view replaces the previous one.
type renderer struct {
	out    io.Writer
	status io.Writer

	printed string
	state   streamclient.State
}

func (r *renderer) Update(v streamclient.View) {
	if v.State != r.state {
		r.state = v.State
		switch v.State {
		case streamclient.StateReconnecting:
			fmt.Fprintf(r.status, "\n[connection lost; reconnecting (attempt %d)]\n", v.Attempt+1)
		case streamclient.StateFailed:
			fmt.Fprintf(r.status, "\n[gave up: %s]\n", v.Failure)
		}
	}
	if v.Content == r.printed {
		return
	}
	if strings.HasPrefix(v.Content, r.printed) {
		fmt.Fprint(r.out, v.Content[len(r.printed):])
	} else {
		fmt.Fprintf(r.out, "\n[resynced]\n%s", v.Content)
	}
	r.printed = v.Content
}

func summary(v streamclient.View, elapsed time.Duration) string {
	parts := []string{
		string(v.State),
		humanize.Bytes(uint64(len(v.Content))),
		humanize.Comma(int64(utf8.RuneCountInString(v.Content))) + " chars",
		elapsed.Round(time.Millisecond).String(),
	}
	if v.Error != "" {
		parts = append(parts, "error: "+v.Error)
	}
	return strings.Join(parts, " | ")
}
