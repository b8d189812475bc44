package console

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
)

const prompt = "synced> "

// Config: параметры SSH-консоли.
type Config struct {
	HostKey        string            // путь к ключу хоста; если файла нет, ключ генерируется и сохраняется
	AuthorizedKeys string            // файл authorized_keys
	Users          map[string]string // логин → пароль
}

// Server: SSH-консоль: shell с построчным вводом и exec одной команды.
type Server struct {
	in  *Interpreter
	cfg *ssh.ServerConfig
	wg  sync.WaitGroup
}

func NewServer(in *Interpreter, c Config) (*Server, error) {
	keys, err := loadAuthorizedKeys(c.AuthorizedKeys)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 && len(c.Users) == 0 {
		return nil, errors.New("console: no users or authorized keys configured")
	}
	sc := &ssh.ServerConfig{}
	if len(c.Users) > 0 {
		sc.PasswordCallback = func(m ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			want, ok := c.Users[m.User()]
			if ok && subtle.ConstantTimeCompare([]byte(want), pass) == 1 {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %s", m.User())
		}
	}
	if len(keys) > 0 {
		sc.PublicKeyCallback = func(m ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if keys[string(key.Marshal())] {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %s", m.User())
		}
	}
	signer, err := hostKey(c.HostKey)
	if err != nil {
		return nil, err
	}
	sc.AddHostKey(signer)
	return &Server{in: in, cfg: sc}, nil
}

func loadAuthorizedKeys(path string) (map[string]bool, error) {
	keys := make(map[string]bool)
	if path == "" {
		return keys, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("console: authorized keys: %w", err)
	}
	for len(bytes.TrimSpace(data)) > 0 {
		pub, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, fmt.Errorf("console: authorized keys %s: %w", path, err)
		}
		keys[string(pub.Marshal())] = true
		data = rest
	}
	return keys, nil
}

// hostKey читает ключ хоста; если файла нет, генерирует ed25519 и сохраняет его.
func hostKey(path string) (ssh.Signer, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			signer, err := ssh.ParsePrivateKey(data)
			if err != nil {
				return nil, fmt.Errorf("console: host key %s: %w", path, err)
			}
			return signer, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("console: host key: %w", err)
		}
	}
	logger.Info("console: generating new SSH host key")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("console: generate host key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("console: encode host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if path != "" {
		if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
			logger.Warn("console: host key write %s: %v", path, err)
		} else {
			logger.Info("console: SSH host key written to %s", path)
		}
	}
	return ssh.ParsePrivateKey(pemBytes)
}

// ListenAndServe слушает addr до отмены ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console: listen %s: %w", addr, err)
	}
	logger.Info("console: listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve принимает соединения с ln до отмены ctx; ждёт завершения открытых сессий.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	var (
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)
	defer func() {
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
		s.wg.Wait()
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("console: accept: %w", err)
		}
		mu.Lock()
		conns[nc] = struct{}{}
		mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, nc)
			mu.Lock()
			delete(conns, nc)
			mu.Unlock()
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	defer nc.Close()
	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.cfg)
	if err != nil {
		logger.Debug("console: handshake %s: %v", nc.RemoteAddr(), err)
		return
	}
	defer sconn.Close()
	logger.Info("console: %s logged in from %s", sconn.User(), sconn.RemoteAddr())
	go ssh.DiscardRequests(reqs)
	var wg sync.WaitGroup
	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := nch.Accept()
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.session(ctx, ch, requests)
		}()
	}
	wg.Wait()
}

func exitStatus(ch ssh.Channel, status uint32) {
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}

func (s *Server) session(ctx context.Context, ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	pty := false
	for req := range reqs {
		switch req.Type {
		case "pty-req":
			pty = true
			req.Reply(true, nil)
		case "env", "window-change":
			req.Reply(true, nil)
		case "shell":
			req.Reply(true, nil)
			go func(pty bool) {
				s.shell(ctx, ch, pty)
				exitStatus(ch, 0)
				ch.Close()
			}(pty)
		case "exec":
			var p struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			var status uint32
			if err := s.in.Exec(ctx, p.Command, ch); err != nil && !errors.Is(err, ErrExit) {
				fmt.Fprintf(ch.Stderr(), "error: %v\n", err)
				status = 1
			}
			exitStatus(ch, status)
			return
		default:
			req.Reply(false, nil)
		}
	}
}

func (s *Server) shell(ctx context.Context, ch ssh.Channel, pty bool) {
	var out io.Writer = ch
	if pty {
		out = crlfWriter{ch}
	}
	fmt.Fprint(out, "synced console, type help for commands\n")
	r := &lineReader{r: bufio.NewReader(ch), echo: out, pty: pty}
	for {
		fmt.Fprint(out, prompt)
		line, err := r.ReadLine()
		if err != nil {
			return
		}
		err = s.in.Exec(ctx, line, out)
		if errors.Is(err, ErrExit) {
			return
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// crlfWriter переводит \n в \r\n для терминала в raw-режиме.
type crlfWriter struct{ w io.Writer }

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// lineReader: минимальный редактор строки: эхо, backspace, ^C, ^D.
type lineReader struct {
	r    *bufio.Reader
	echo io.Writer
	pty  bool
}

func (l *lineReader) ReadLine() (string, error) {
	var line []byte
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case '\r', '\n':
			if l.pty {
				l.echo.Write([]byte("\n"))
			}
			return string(line), nil
		case 0x7f, 0x08:
			if len(line) > 0 {
				line = line[:len(line)-1]
				if l.pty {
					l.echo.Write([]byte("\b \b"))
				}
			}
		case 0x03:
			if l.pty {
				l.echo.Write([]byte("^C\n"))
			}
			return "", nil
		case 0x04:
			if len(line) == 0 {
				return "", io.EOF
			}
		default:
			if b < 0x20 {
				continue
			}
			line = append(line, b)
			if l.pty {
				l.echo.Write([]byte{b})
			}
		}
	}
}
