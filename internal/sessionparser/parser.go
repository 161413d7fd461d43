// Package sessionparser reassembles framed (header, body) sections from an
// arbitrarily fragmented inbound byte stream. Headers are
// kept in memory; bodies are spooled to a disk-backed cache file as they
// arrive so that multi-megabyte payloads never sit in memory.
package sessionparser

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chenyukaola/feeds-service/internal/byteutil"
)

// Listener receives one completed section per call, in arrival order.
type Listener interface {
	// OnSection is invoked with the raw header bytes (head_size worth) and
	// the path of the now-closed, fully-written body cache file.
	OnSection(headerBytes []byte, bodyCachePath string) error
}

type state int

const (
	stateSeekMagic state = iota
	stateReadHeader
	stateStreamBody
)

// Parser is a single state machine instance. It is not safe for concurrent
// use — exactly one parser per inbound peer is assumed, fed
// sequentially, never locked.
type Parser struct {
	cacheDir string
	prefix   string
	listener Listener
	logger   *zap.Logger

	state state
	buf   []byte

	headerBytes   []byte
	bodyRemaining uint64
	bodyFile      *os.File
	bodyPath      string
}

var magicBytes = func() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, byteutil.ProtocolMagic)
	return b
}()

// New constructs a parser that spools bodies under cacheDir with the given
// filename prefix and delivers completed sections to listener.
func New(cacheDir, prefix string, listener Listener, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{cacheDir: cacheDir, prefix: prefix, listener: listener, logger: logger}
}

// Feed processes the next arrival of bytes from the transport. It may
// invoke the listener zero or more times before returning. A nil return
// with no listener calls means "need more data" — the caller should feed
// the next arrival whenever it shows up; partial state is retained.
func (p *Parser) Feed(data []byte) error {
	for {
		switch p.state {
		case stateStreamBody:
			take := data
			if uint64(len(take)) > p.bodyRemaining {
				take = take[:p.bodyRemaining]
			}
			if len(take) > 0 {
				if err := p.writeBody(take); err != nil {
					return err
				}
				p.bodyRemaining -= uint64(len(take))
			}
			data = data[len(take):]
			if p.bodyRemaining == 0 {
				if err := p.finishSection(); err != nil {
					return err
				}
				p.state = stateSeekMagic
				continue
			}
			return nil

		case stateSeekMagic:
			if len(data) > 0 {
				p.buf = append(p.buf, data...)
				data = nil
			}
			idx := bytes.Index(p.buf, magicBytes)
			if idx < 0 {
				keep := len(magicBytes) - 1
				if len(p.buf) > keep {
					dropped := len(p.buf) - keep
					p.logger.Info("sessionparser: discarding non-magic bytes", zap.Int("bytes", dropped))
					p.buf = p.buf[len(p.buf)-keep:]
				}
				return nil
			}
			if idx > 0 {
				p.logger.Info("sessionparser: discarding bytes before magic", zap.Int("bytes", idx))
			}
			p.buf = p.buf[idx:]
			p.state = stateReadHeader
			continue

		case stateReadHeader:
			if len(data) > 0 {
				p.buf = append(p.buf, data...)
				data = nil
			}
			if len(p.buf) < byteutil.HeaderSize {
				return nil
			}
			hdr, err := byteutil.DecodeHeader(p.buf[:byteutil.HeaderSize])
			if err != nil {
				// Corrupted section: drop the bad header and resync on the
				// next magic occurrence in whatever bytes remain.
				p.buf = p.buf[byteutil.HeaderSize:]
				p.state = stateSeekMagic
				return err
			}
			need := byteutil.HeaderSize + int(hdr.HeadSize)
			if len(p.buf) < need {
				return nil
			}
			p.headerBytes = append([]byte(nil), p.buf[byteutil.HeaderSize:need]...)
			data = append([]byte(nil), p.buf[need:]...)
			p.buf = nil
			if err := p.openBodyCache(); err != nil {
				return err
			}
			p.bodyRemaining = hdr.BodySize
			p.state = stateStreamBody
			continue
		}
	}
}

func (p *Parser) openBodyCache() error {
	name := fmt.Sprintf("%s%d", p.prefix, rand.Uint32())
	path := filepath.Join(p.cacheDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sessionparser: create body cache: %w", err)
	}
	p.bodyFile = f
	p.bodyPath = path
	return nil
}

func (p *Parser) writeBody(b []byte) error {
	_, err := p.bodyFile.Write(b)
	if err != nil {
		return fmt.Errorf("sessionparser: write body cache: %w", err)
	}
	return nil
}

// finishSection flushes and closes the body cache file, retrying fsync a
// few times against transient disk pressure, then hands the section to the
// listener.
func (p *Parser) finishSection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b := retry.NewExponential(10 * time.Millisecond)
	b = retry.WithMaxRetries(3, b)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := p.bodyFile.Sync(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	closeErr := p.bodyFile.Close()
	if err := multierr.Combine(err, closeErr); err != nil {
		return fmt.Errorf("sessionparser: flush body cache: %w", err)
	}

	headerBytes, bodyPath := p.headerBytes, p.bodyPath
	p.headerBytes, p.bodyFile, p.bodyPath = nil, nil, ""
	return p.listener.OnSection(headerBytes, bodyPath)
}
