package tagging

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/blurdetect/internal/logging"
)

// tagImageMethod is the vision service's tagging RPC. The request is the raw
// image bytes and the response a free-form caption; both sides use protobuf
// wrapper types, so no generated stubs are needed.
const tagImageMethod = "/classify.vision.ImageTagger/TagImage"

const dialTimeout = 5 * time.Second

// DialTagger returns a ready-to-use client for the vision tagging service.
func DialTagger(ctx context.Context, addr string, logger *zap.Logger) (Tagger, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("tagging.dial", "", err)
		logger.Error("failed to dial tagging service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcTagger{conn: conn, logger: logger.Named("tagger")}, conn, nil
}

type grpcTagger struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

func (g *grpcTagger) TagImage(ctx context.Context, imageBytes []byte) (string, error) {
	var reply wrapperspb.StringValue
	if err := g.conn.Invoke(ctx, tagImageMethod, wrapperspb.Bytes(imageBytes), &reply); err != nil {
		wrapped := logging.NewOperationError("tagging.tag_image", "", err)
		g.logger.Error("tagging call failed", zap.Error(wrapped))
		return "", wrapped
	}
	return NormalizeTag(reply.GetValue()), nil
}

// NormalizeTag reduces a model caption to a single lowercase word. The
// vision model is prompted for one word but occasionally answers with
// punctuation or a short sentence anyway.
func NormalizeTag(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 {
		return "unknown"
	}
	tag := strings.TrimFunc(fields[0], func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if tag == "" {
		return "unknown"
	}
	return tag
}
