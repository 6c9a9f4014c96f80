// Package giftcodev1 defines the gift code admin API: its messages, the
// connect handler and client constructors, and a JSON codec to carry the
// messages on the wire.
package giftcodev1

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
)

// GiftCodeServiceName is the fully-qualified name of the GiftCodeService service.
const GiftCodeServiceName = "giftcode.v1.GiftCodeService"

// Procedure paths, used for routing and for client requests
const (
	GiftCodeServiceAddGiftCodeProcedure   = "/giftcode.v1.GiftCodeService/AddGiftCode"
	GiftCodeServiceGetGiftCodeProcedure   = "/giftcode.v1.GiftCodeService/GetGiftCode"
	GiftCodeServiceListGiftCodesProcedure = "/giftcode.v1.GiftCodeService/ListGiftCodes"
)

// GiftCode is the wire form of a stored gift code
type GiftCode struct {
	Code       string     `json:"code"`
	CreatedAt  time.Time  `json:"created_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	CreatedFor string     `json:"created_for,omitempty"`
	Valid      bool       `json:"valid"`
}

// AddGiftCodeRequest stores Code, or a server generated code when Code is empty
type AddGiftCodeRequest struct {
	Code       string `json:"code,omitempty"`
	CreatedFor string `json:"created_for,omitempty"`
}

type AddGiftCodeResponse struct {
	GiftCode *GiftCode `json:"gift_code"`
}

type GetGiftCodeRequest struct {
	Code string `json:"code"`
}

type GetGiftCodeResponse struct {
	GiftCode *GiftCode `json:"gift_code"`
}

// ListGiftCodesRequest lists the codes issued for one user
type ListGiftCodesRequest struct {
	CreatedFor string `json:"created_for"`
}

type ListGiftCodesResponse struct {
	GiftCodes []*GiftCode `json:"gift_codes"`
}

// GiftCodeServiceHandler is implemented by the server
type GiftCodeServiceHandler interface {
	AddGiftCode(context.Context, *connect.Request[AddGiftCodeRequest]) (*connect.Response[AddGiftCodeResponse], error)
	GetGiftCode(context.Context, *connect.Request[GetGiftCodeRequest]) (*connect.Response[GetGiftCodeResponse], error)
	ListGiftCodes(context.Context, *connect.Request[ListGiftCodesRequest]) (*connect.Response[ListGiftCodesResponse], error)
}

// NewGiftCodeServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewGiftCodeServiceHandler(svc GiftCodeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	addGiftCode := connect.NewUnaryHandler(GiftCodeServiceAddGiftCodeProcedure, svc.AddGiftCode, opts...)
	getGiftCode := connect.NewUnaryHandler(GiftCodeServiceGetGiftCodeProcedure, svc.GetGiftCode, opts...)
	listGiftCodes := connect.NewUnaryHandler(GiftCodeServiceListGiftCodesProcedure, svc.ListGiftCodes, opts...)

	return "/" + GiftCodeServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GiftCodeServiceAddGiftCodeProcedure:
			addGiftCode.ServeHTTP(w, r)
		case GiftCodeServiceGetGiftCodeProcedure:
			getGiftCode.ServeHTTP(w, r)
		case GiftCodeServiceListGiftCodesProcedure:
			listGiftCodes.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GiftCodeServiceClient calls a remote GiftCodeService
type GiftCodeServiceClient interface {
	AddGiftCode(context.Context, *connect.Request[AddGiftCodeRequest]) (*connect.Response[AddGiftCodeResponse], error)
	GetGiftCode(context.Context, *connect.Request[GetGiftCodeRequest]) (*connect.Response[GetGiftCodeResponse], error)
	ListGiftCodes(context.Context, *connect.Request[ListGiftCodesRequest]) (*connect.Response[ListGiftCodesResponse], error)
}

type giftCodeServiceClient struct {
	addGiftCode   *connect.Client[AddGiftCodeRequest, AddGiftCodeResponse]
	getGiftCode   *connect.Client[GetGiftCodeRequest, GetGiftCodeResponse]
	listGiftCodes *connect.Client[ListGiftCodesRequest, ListGiftCodesResponse]
}

// NewGiftCodeServiceClient constructs a client for the service at baseURL
// (e.g. http://localhost:8080).
func NewGiftCodeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) GiftCodeServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &giftCodeServiceClient{
		addGiftCode:   connect.NewClient[AddGiftCodeRequest, AddGiftCodeResponse](httpClient, baseURL+GiftCodeServiceAddGiftCodeProcedure, opts...),
		getGiftCode:   connect.NewClient[GetGiftCodeRequest, GetGiftCodeResponse](httpClient, baseURL+GiftCodeServiceGetGiftCodeProcedure, opts...),
		listGiftCodes: connect.NewClient[ListGiftCodesRequest, ListGiftCodesResponse](httpClient, baseURL+GiftCodeServiceListGiftCodesProcedure, opts...),
	}
}

func (c *giftCodeServiceClient) AddGiftCode(ctx context.Context, req *connect.Request[AddGiftCodeRequest]) (*connect.Response[AddGiftCodeResponse], error) {
	return c.addGiftCode.CallUnary(ctx, req)
}

func (c *giftCodeServiceClient) GetGiftCode(ctx context.Context, req *connect.Request[GetGiftCodeRequest]) (*connect.Response[GetGiftCodeResponse], error) {
	return c.getGiftCode.CallUnary(ctx, req)
}

func (c *giftCodeServiceClient) ListGiftCodes(ctx context.Context, req *connect.Request[ListGiftCodesRequest]) (*connect.Response[ListGiftCodesResponse], error) {
	return c.listGiftCodes.CallUnary(ctx, req)
}
