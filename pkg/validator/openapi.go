package validator

import (
	"fmt"
	"sync"

	"homework-helper/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates requests against an OpenAPI document
type OpenAPIValidator struct {
	swagger    *openapi3.T
	router     routers.Router
	schemaPath string
	mutex      sync.RWMutex
}

// NewOpenAPIValidator creates a new OpenAPI validator
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	swagger, router, err := loadOpenAPISchema(schemaPath)
	if err != nil {
		return nil, err
	}

	return &OpenAPIValidator{
		swagger:    swagger,
		router:     router,
		schemaPath: schemaPath,
	}, nil
}

// loadOpenAPISchema loads the OpenAPI schema from disk and builds its router
func loadOpenAPISchema(path string) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", path, err)
	}

	if err := swagger.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	// Servers would restrict matching to their hosts
	swagger.Servers = nil

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return swagger, router, nil
}

// ReloadSchema reloads the OpenAPI schema from disk
func (v *OpenAPIValidator) ReloadSchema() error {
	swagger, router, err := loadOpenAPISchema(v.schemaPath)
	if err != nil {
		return err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.swagger = swagger
	v.router = router
	return nil
}

// Middleware rejects requests that violate the document with VALIDATION_FAILED.
// Operations the document does not describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v.mutex.RLock()
		router := v.router
		v.mutex.RUnlock()

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.Error(errors.ValidationError("Request does not match the API schema", schemaFieldErrors(err)))
			c.Abort()
			return
		}

		c.Next()
	}
}

// schemaFieldErrors flattens kin-openapi errors into field errors
func schemaFieldErrors(err error) []errors.FieldError {
	var out []errors.FieldError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case openapi3.MultiError:
			for _, inner := range e {
				walk(inner)
			}
		case *openapi3filter.RequestError:
			if multi, ok := e.Err.(openapi3.MultiError); ok {
				walk(multi)
				return
			}
			field := "body"
			if e.Parameter != nil {
				field = e.Parameter.Name
			}
			if schemaErr, ok := e.Err.(*openapi3.SchemaError); ok {
				if p := schemaErr.JSONPointer(); len(p) > 0 {
					field = p[len(p)-1]
				}
				out = append(out, errors.FieldError{Field: field, Message: schemaErr.Reason})
				return
			}
			out = append(out, errors.FieldError{Field: field, Message: e.Error()})
		case *openapi3.SchemaError:
			field := "body"
			if p := e.JSONPointer(); len(p) > 0 {
				field = p[len(p)-1]
			}
			out = append(out, errors.FieldError{Field: field, Message: e.Reason})
		default:
			out = append(out, errors.FieldError{Field: "request", Message: err.Error()})
		}
	}
	walk(err)
	return out
}
