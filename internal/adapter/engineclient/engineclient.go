// Package engineclient provides thin unary gRPC clients for the OCR and
// classifier model-serving processes, built directly on
// google.golang.org/protobuf's well-known wrapper types rather than a
// generated service stub — the OCR and classifier engines are internal
// model servers with no published .proto, so requests/responses are
// framed with wrapperspb/structpb the same way the rest of this codebase
// leans on protobuf's runtime instead of hand-rolled wire formats.
package engineclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OCRClient calls the OCR engine's ExtractText RPC.
type OCRClient struct {
	conn   *grpc.ClientConn
	method string
}

// NewOCRClient wraps an already-dialed connection to the OCR engine.
func NewOCRClient(conn *grpc.ClientConn) *OCRClient {
	return &OCRClient{conn: conn, method: "/docpipe.ocr.OCREngine/ExtractText"}
}

// ExtractText sends raw document bytes and returns the recognized text.
func (c *OCRClient) ExtractText(ctx context.Context, imageBytes []byte) (string, error) {
	req := wrapperspb.Bytes(imageBytes)
	resp := &wrapperspb.StringValue{}
	if err := c.conn.Invoke(ctx, c.method, req, resp); err != nil {
		return "", fmt.Errorf("engineclient: ocr extract: %w", err)
	}
	return resp.GetValue(), nil
}

// ClassifierClient calls the classifier engine's Classify RPC.
type ClassifierClient struct {
	conn   *grpc.ClientConn
	method string
}

// NewClassifierClient wraps an already-dialed connection to the
// classifier engine.
func NewClassifierClient(conn *grpc.ClientConn) *ClassifierClient {
	return &ClassifierClient{conn: conn, method: "/docpipe.classifier.ClassifierEngine/Classify"}
}

// Classify sends raw document text and returns the predicted doc type
// and confidence, decoded from a structpb.Struct response.
func (c *ClassifierClient) Classify(ctx context.Context, text string) (string, float64, error) {
	req := wrapperspb.String(text)
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, req, resp); err != nil {
		return "", 0, fmt.Errorf("engineclient: classify: %w", err)
	}
	fields := resp.GetFields()
	docType := fields["doc_type"].GetStringValue()
	confidence := fields["confidence"].GetNumberValue()
	return docType, confidence, nil
}
