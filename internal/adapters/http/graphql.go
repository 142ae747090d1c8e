package http

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/pkg/metrics"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	scopeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Scope",
		Fields: graphql.Fields{
			"name":   &graphql.Field{Type: graphql.String},
			"osmId":  &graphql.Field{Type: graphql.String},
			"areaId": &graphql.Field{Type: graphql.String},
		},
	})

	blockType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Block",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"scope":        &graphql.Field{Type: scopeType},
			"wayIds":       &graphql.Field{Type: graphql.NewList(graphql.String)},
			"nodeIds":      &graphql.Field{Type: graphql.NewList(graphql.String)},
			"lengthMeters": &graphql.Field{Type: graphql.Float},
			"resolvedAt":   &graphql.Field{Type: graphql.DateTime},
			"geojson": &graphql.Field{
				Type:        graphql.String,
				Description: "The block as a GeoJSON FeatureCollection, encoded as a string",
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"servers": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Configured Overpass interpreters in rotation order",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					servers := deps.Blocks.Servers()
					out := make([]string, len(servers))
					for i, s := range servers {
						out[i] = s.String()
					}
					return out, nil
				},
			},
			"block": &graphql.Field{
				Type:        blockType,
				Description: "Resolve the street block between two intersections",
				Args: graphql.FieldConfigArgument{
					"intersections": &graphql.ArgumentConfig{
						Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))))),
						Description: "Two lists of full street names, e.g. [[\"Grand Avenue\", \"Perkins Street\"], [\"Grand Avenue\", \"Bellevue Avenue\"]]",
					},
					"osmId":        &graphql.ArgumentConfig{Type: graphql.String},
					"country":      &graphql.ArgumentConfig{Type: graphql.String},
					"state":        &graphql.ArgumentConfig{Type: graphql.String},
					"city":         &graphql.ArgumentConfig{Type: graphql.String},
					"neighborhood": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					req, err := blockRequestFromArgs(p.Args)
					if err != nil {
						return nil, err
					}
					block, err := deps.Blocks.Resolve(p.Context, req)
					if err != nil {
						metrics.BlockResolutions.WithLabelValues("failed").Inc()
						return nil, err
					}
					metrics.BlockResolutions.WithLabelValues("resolved").Inc()
					geojson, err := json.Marshal(block.FeatureCollection())
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"id": block.ID,
						"scope": map[string]interface{}{
							"name":   block.Scope.Name,
							"osmId":  block.Scope.OSMID,
							"areaId": block.Scope.AreaID,
						},
						"wayIds":       featureIDs(block.Ways),
						"nodeIds":      featureIDs(block.Nodes),
						"lengthMeters": block.LengthMeters,
						"resolvedAt":   block.ResolvedAt,
						"geojson":      string(geojson),
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func blockRequestFromArgs(args map[string]interface{}) (domain.BlockRequest, error) {
	var req domain.BlockRequest
	raw, _ := args["intersections"].([]interface{})
	if len(raw) != 2 {
		return req, fmt.Errorf("%w: intersections must have exactly 2 items", domain.ErrInvalidRequest)
	}
	for i, in := range raw {
		streets, _ := in.([]interface{})
		for _, s := range streets {
			req.Intersections[i].Streets = append(req.Intersections[i].Streets, fmt.Sprint(s))
		}
	}
	str := func(key string) string {
		s, _ := args[key].(string)
		return s
	}
	req.Area = domain.Area{
		Country:      str("country"),
		State:        str("state"),
		City:         str("city"),
		Neighborhood: str("neighborhood"),
		OSMID:        str("osmId"),
	}
	return req, nil
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
