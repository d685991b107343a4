package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/board"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

// JSONCodecName is the content subtype clients select with
// grpc.CallContentSubtype to talk to the board service.
const JSONCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GetBoardRequest struct {
	Kind    string `json:"kind"`
	EventID string `json:"event_id,omitempty"`
}

type MoveCardRequest struct {
	Kind            string `json:"kind"`
	ID              string `json:"id"`
	ExpectedVersion int    `json:"expected_version"`
	ToStatus        string `json:"to_status"`
	ToIndex         int    `json:"to_index"`
	Actor           string `json:"actor,omitempty"`
}

type CardMessage struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Rank        int64     `json:"rank"`
	Version     int       `json:"version"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type ColumnMessage struct {
	Status string        `json:"status"`
	Cards  []CardMessage `json:"cards"`
}

type BoardReply struct {
	Kind    string          `json:"kind"`
	Columns []ColumnMessage `json:"columns"`
}

type MoveCardReply struct {
	Card  CardMessage `json:"card"`
	Board BoardReply  `json:"board"`
}

// BoardServiceServer is the server API of storefront.v1.BoardService.
type BoardServiceServer interface {
	GetBoard(ctx context.Context, req *GetBoardRequest) (*BoardReply, error)
	MoveCard(ctx context.Context, req *MoveCardRequest) (*MoveCardReply, error)
}

const (
	boardServiceName = "storefront.v1.BoardService"
	getBoardMethod   = "/" + boardServiceName + "/GetBoard"
	moveCardMethod   = "/" + boardServiceName + "/MoveCard"
)

var BoardServiceDesc = grpc.ServiceDesc{
	ServiceName: boardServiceName,
	HandlerType: (*BoardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBoard", Handler: getBoardHandler},
		{MethodName: "MoveCard", Handler: moveCardHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterBoardServiceServer(s grpc.ServiceRegistrar, srv BoardServiceServer) {
	s.RegisterService(&BoardServiceDesc, srv)
}

func getBoardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBoardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BoardServiceServer).GetBoard(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBoardMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BoardServiceServer).GetBoard(ctx, req.(*GetBoardRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func moveCardHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MoveCardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BoardServiceServer).MoveCard(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: moveCardMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BoardServiceServer).MoveCard(ctx, req.(*MoveCardRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BoardClient calls storefront.v1.BoardService using the JSON codec.
type BoardClient struct {
	cc grpc.ClientConnInterface
}

func NewBoardClient(cc grpc.ClientConnInterface) *BoardClient {
	return &BoardClient{cc: cc}
}

func (c *BoardClient) GetBoard(ctx context.Context, in *GetBoardRequest, opts ...grpc.CallOption) (*BoardReply, error) {
	out := new(BoardReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, getBoardMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BoardClient) MoveCard(ctx context.Context, in *MoveCardRequest, opts ...grpc.CallOption) (*MoveCardReply, error) {
	out := new(MoveCardReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, moveCardMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type GRPCHandler struct {
	orders        Orders
	registrations Registrations
	log           logrus.FieldLogger
}

func NewGRPCHandler(orders Orders, registrations Registrations, log logrus.FieldLogger) *GRPCHandler {
	return &GRPCHandler{orders: orders, registrations: registrations, log: log}
}

func (h *GRPCHandler) GetBoard(ctx context.Context, req *GetBoardRequest) (*BoardReply, error) {
	var (
		b   board.Board
		err error
	)
	switch domain.BoardKind(req.Kind) {
	case domain.BoardKindOrders:
		b, err = h.orders.OrderBoard(ctx)
	case domain.BoardKindRegistrations:
		if req.EventID == "" {
			return nil, status.Error(codes.InvalidArgument, "event_id is required for registration boards")
		}
		b, err = h.registrations.RegistrationBoard(ctx, req.EventID)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown board kind %q", req.Kind)
	}
	if err != nil {
		return nil, h.toStatus(err)
	}
	reply := boardReply(b)
	return &reply, nil
}

func (h *GRPCHandler) MoveCard(ctx context.Context, req *MoveCardRequest) (*MoveCardReply, error) {
	if req.ID == "" || req.ToStatus == "" {
		return nil, status.Error(codes.InvalidArgument, "id and to_status are required")
	}
	in := service.MoveInput{
		ID:              req.ID,
		ExpectedVersion: req.ExpectedVersion,
		ToStatus:        req.ToStatus,
		ToIndex:         req.ToIndex,
		Actor:           req.Actor,
	}

	var (
		res service.MoveResult
		err error
	)
	switch domain.BoardKind(req.Kind) {
	case domain.BoardKindOrders:
		res, err = h.orders.MoveOrder(ctx, in)
	case domain.BoardKindRegistrations:
		res, err = h.registrations.MoveRegistration(ctx, in)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown board kind %q", req.Kind)
	}
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &MoveCardReply{Card: cardMessage(res.Card), Board: boardReply(res.Board)}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, board.ErrCardNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrEventFull), errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, board.ErrUnknownColumn):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	h.log.WithError(err).Error("board rpc failed")
	return status.Error(codes.Internal, "internal error")
}

func cardMessage(c board.Card) CardMessage {
	return CardMessage{
		ID:          c.ID,
		Status:      c.Status,
		Rank:        c.Rank,
		Version:     c.Version,
		Title:       c.Title,
		Subtitle:    c.Subtitle,
		AmountCents: c.AmountCents,
		CreatedAt:   c.CreatedAt,
	}
}

func boardReply(b board.Board) BoardReply {
	out := BoardReply{Kind: string(b.Kind), Columns: make([]ColumnMessage, 0, len(b.Columns))}
	for _, col := range b.Columns {
		cm := ColumnMessage{Status: col.Status, Cards: make([]CardMessage, 0, len(col.Cards))}
		for _, c := range col.Cards {
			cm.Cards = append(cm.Cards, cardMessage(c))
		}
		out.Columns = append(out.Columns, cm)
	}
	return out
}

// UnaryLogger logs each RPC with its method, code and duration.
func UnaryLogger(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start).String(),
		}).Info("grpc request")
		return resp, err
	}
}
