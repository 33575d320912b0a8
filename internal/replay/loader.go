package replay

import (
	"fmt"

	"github.com/vinayprograms/taskforce/internal/session"
)

// loadSession reads a session log and truncates oversized content.
func (r *Replayer) loadSession(path string) (*session.Session, error) {
	sess, err := session.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if r.maxContentSize > 0 {
		for i := range sess.Events {
			if n := len(sess.Events[i].Content); n > r.maxContentSize {
				sess.Events[i].Content = cutUTF8(sess.Events[i].Content, r.maxContentSize) +
					fmt.Sprintf("\n... [truncated, %d bytes total]", n)
			}
		}
	}
	return sess, nil
}
