package filecache

import (
	"encoding/binary"
	"fmt"

	"github.com/raoulh/moolticuted/internal/job"
	"github.com/raoulh/moolticuted/internal/protocol"
)

// encodeName lays out a length-prefixed UTF-8 name: 1-byte length, then
// the raw bytes — the files-cache commands' common field shape.
func encodeName(name string) []byte {
	buf := make([]byte, 1+len(name))
	buf[0] = byte(len(name))
	copy(buf[1:], name)
	return buf
}

// RefreshStep builds the job.Step that re-pulls the device's full file
// list and replaces c's mapping wholesale (spec.md §4.8's refresh
// operation), independent of any MMM session — per SPEC_FULL.md §4.6
// supplement, files-cache commands are MMM-adjacent, not MMM-gated.
func RefreshStep(c *Cache) job.Step {
	return job.Step{
		Name: "filecache_refresh",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdGetFilesCacheList, nil, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				c.MarkOutOfSync()
				return job.StopFailure
			}
			files, err := decodeFileList(msg.Payload[1:])
			if err != nil {
				c.MarkOutOfSync()
				return job.StopFailure
			}
			c.Refresh(files)
			return job.StopSuccess
		},
	}
}

func decodeFileList(body []byte) (map[string]int64, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("filecache: file list too short")
	}
	count := binary.LittleEndian.Uint16(body[0:2])
	off := 2
	files := make(map[string]int64, count)
	for i := 0; i < int(count); i++ {
		if off >= len(body) {
			return nil, fmt.Errorf("filecache: file list truncated at entry %d", i)
		}
		nameLen := int(body[off])
		off++
		if off+nameLen+4 > len(body) {
			return nil, fmt.Errorf("filecache: file list truncated in entry %d", i)
		}
		name := string(body[off : off+nameLen])
		off += nameLen
		size := int64(binary.LittleEndian.Uint32(body[off : off+4]))
		off += 4
		files[name] = size
	}
	return files, nil
}

// AddFileStep tells the device about a newly-created file and, on
// success, adds it to c.
func AddFileStep(c *Cache, name string, size int64) job.Step {
	return job.Step{
		Name: "filecache_add",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			payload := append(encodeName(name), 0, 0, 0, 0)
			binary.LittleEndian.PutUint32(payload[len(payload)-4:], uint32(size))
			return protocol.CmdAddFileToCache, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				c.MarkOutOfSync()
				return job.StopFailure
			}
			if err := c.Add(name, size); err != nil {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}
}

// UpdateFileStep tells the device a tracked file's size changed and, on
// success, updates c.
func UpdateFileStep(c *Cache, name string, size int64) job.Step {
	return job.Step{
		Name: "filecache_update",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			payload := append(encodeName(name), 0, 0, 0, 0)
			binary.LittleEndian.PutUint32(payload[len(payload)-4:], uint32(size))
			return protocol.CmdUpdateFileInCache, payload, nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				c.MarkOutOfSync()
				return job.StopFailure
			}
			if err := c.Update(name, size); err != nil {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}
}

// RemoveFileStep tells the device a tracked file was deleted and, on
// success, removes it from c.
func RemoveFileStep(c *Cache, name string) job.Step {
	return job.Step{
		Name: "filecache_remove",
		Build: func(st job.State) (protocol.Command, []byte, error) {
			return protocol.CmdRemoveFileFromCache, encodeName(name), nil
		},
		Handle: func(st job.State, msg protocol.Message, ok bool) job.Outcome {
			if !ok || msg.Status != protocol.StatusOK {
				c.MarkOutOfSync()
				return job.StopFailure
			}
			if err := c.Remove(name); err != nil {
				return job.StopFailure
			}
			return job.StopSuccess
		},
	}
}
