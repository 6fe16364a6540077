package items

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-logr/logr"
	jsoniter "github.com/json-iterator/go"
)

const (
	RouteRoot    = "GET /"
	RoutePutItem = "PUT /items"

	RootBody = "Hello from Lambda!"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Item is the request body of PUT /items and the stored DynamoDB item.
type Item struct {
	ID    string  `json:"id" dynamodbav:"id"`
	Price float64 `json:"price" dynamodbav:"price"`
	Name  string  `json:"name" dynamodbav:"name"`
}

type Store interface {
	Put(ctx context.Context, item Item) error
}

type options struct {
	log logr.Logger
}

type Option interface {
	apply(*options)
}

type loggerOption struct {
	log logr.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.log = o.log
}

func WithLogger(log logr.Logger) Option {
	return loggerOption{log}
}

// Handler dispatches API Gateway requests on the route key.
// Every route answers 200: malformed bodies and storage failures are logged only.
type Handler struct {
	store Store
	log   logr.Logger
}

func NewHandler(store Store, opts ...Option) *Handler {
	options := options{log: logr.Discard()}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Handler{store: store, log: options.log}
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	log := h.log.WithValues("routeKey", req.RouteKey, "requestID", req.RequestContext.RequestID)

	var body string
	switch req.RouteKey {
	case RouteRoot:
		body = RootBody
	case RoutePutItem:
		item, err := decodeItem(req)
		if err != nil {
			log.Error(err, "could not decode item")
		} else if err := h.store.Put(ctx, item); err != nil {
			log.Error(err, "could not put item", "id", item.ID)
		} else {
			log.V(1).Info("item stored", "id", item.ID)
		}
		body = "Put item " + item.ID
	default:
		log.Info("unsupported route")
		body = "Unsupported route: " + req.RouteKey
	}

	return newResponse(body)
}

func decodeItem(req events.APIGatewayV2HTTPRequest) (Item, error) {
	data := []byte(req.Body)
	if req.IsBase64Encoded {
		var err error
		if data, err = base64.StdEncoding.DecodeString(req.Body); err != nil {
			return Item{}, fmt.Errorf("could not decode base64 body: %w", err)
		}
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return Item{}, fmt.Errorf("could not unmarshal item: %w", err)
	}

	return item, nil
}

func newResponse(body string) (events.APIGatewayV2HTTPResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("could not marshal response body: %w", err)
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}, nil
}
