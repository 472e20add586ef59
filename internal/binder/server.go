package binder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
)

// TransactArgs передаются в RPC Binder.Transact.
type TransactArgs struct {
	Service string `json:"service"`
	Code    uint32 `json:"code"`
	Data    []byte `json:"data"`
}

// TransactReply возвращается из RPC Binder.Transact.
type TransactReply struct {
	Status int32  `json:"status"`
	Data   []byte `json:"data"`
}

// ListArgs передаются в RPC Binder.List.
type ListArgs struct{}

// ListReply перечисляет опубликованные сервисы.
type ListReply struct {
	Services []string `json:"services"`
}

// Server публикует сервисы LocalManager через JSON-RPC на unix-сокете.
type Server struct {
	path      string
	manager   *LocalManager
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer открывает сокет по пути path; существующий файл сокета удаляется.
func NewServer(ctx context.Context, path string, manager *LocalManager, logger *slog.Logger) (*Server, error) {
	if manager == nil {
		return nil, errors.New("binder server requires service manager")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Binder", &rpcService{manager: manager, ctx: serverCtx, logger: logger}); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		manager:   manager,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path возвращает путь сокета.
func (s *Server) Path() string { return s.path }

// Serve принимает соединения в фоне до Close или отмены контекста.
func (s *Server) Serve() {
	s.logger.Debug("binder server listening", "socket", s.path)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed", "err", err)
				continue
			}
			if !s.track(conn, true) {
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// track регистрирует соединение. После Close новое соединение сразу
// закрывается и track возвращает false.
func (s *Server) track(c net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, c)
		return true
	}
	if s.ctx.Err() != nil {
		_ = c.Close()
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

// Close останавливает сервер, закрывает соединения и удаляет файл сокета.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if rmErr := os.RemoveAll(s.path); rmErr != nil {
		s.logger.Warn("failed to remove socket", "socket", s.path, "err", rmErr)
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

type rpcService struct {
	manager *LocalManager
	ctx     context.Context
	logger  *slog.Logger
}

// Transact выполняет транзакцию; транспортный статус передается в ответе, а не ошибкой RPC.
func (r *rpcService) Transact(args TransactArgs, reply *TransactReply) error {
	data, err := r.manager.transact(r.ctx, args.Service, args.Code, args.Data)
	st := StatusOf(err)
	if err != nil {
		r.logger.Debug("transaction failed", "service", args.Service, "code", args.Code, "status", int32(st), "err", err)
	}
	reply.Status = int32(st)
	reply.Data = data
	return nil
}

func (r *rpcService) List(_ ListArgs, reply *ListReply) error {
	reply.Services = r.manager.ListServices()
	return nil
}
