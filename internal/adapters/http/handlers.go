package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/core/usecases"
	"github.com/samirrijal/streetblock/internal/pkg/metrics"
)

type pointRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

type intersectionRequest struct {
	Streets []string      `json:"streets" validate:"required_without=Point,omitempty,min=2,max=4,dive,required,max=200"`
	Point   *pointRequest `json:"point"`
}

type areaRequest struct {
	Country      string `json:"country" validate:"max=200"`
	State        string `json:"state" validate:"max=200"`
	City         string `json:"city" validate:"required_without=OSMID,max=200"`
	Neighborhood string `json:"neighborhood" validate:"max=200"`
	OSMID        string `json:"osm_id" validate:"omitempty,numeric"`
}

type blockRequest struct {
	Intersections []intersectionRequest `json:"intersections" validate:"len=2,dive"`
	Area          areaRequest           `json:"area"`
}

func (r blockRequest) toDomain() domain.BlockRequest {
	var req domain.BlockRequest
	for i, in := range r.Intersections {
		req.Intersections[i].Streets = in.Streets
		if in.Point != nil {
			req.Intersections[i].Point = &domain.GeoPoint{Lat: in.Point.Lat, Lon: in.Point.Lon}
		}
	}
	req.Area = domain.Area{
		Country:      r.Area.Country,
		State:        r.Area.State,
		City:         r.Area.City,
		Neighborhood: r.Area.Neighborhood,
		OSMID:        r.Area.OSMID,
	}
	return req
}

type blockSummary struct {
	ID            string                 `json:"id"`
	Scope         domain.Scope           `json:"scope"`
	WayIDs        []string               `json:"way_ids"`
	NodeIDs       []string               `json:"node_ids"`
	LengthMeters  float64                `json:"length_meters"`
	Intersections [2]domain.Intersection `json:"intersections"`
	ResolvedAt    time.Time              `json:"resolved_at"`
}

type blockResponse struct {
	Block   blockSummary             `json:"block"`
	GeoJSON domain.FeatureCollection `json:"geojson"`
}

func newBlockResponse(b *domain.Block) blockResponse {
	return blockResponse{
		Block: blockSummary{
			ID:            b.ID,
			Scope:         b.Scope,
			WayIDs:        featureIDs(b.Ways),
			NodeIDs:       featureIDs(b.Nodes),
			LengthMeters:  b.LengthMeters,
			Intersections: b.Intersections,
			ResolvedAt:    b.ResolvedAt,
		},
		GeoJSON: b.FeatureCollection(),
	}
}

func featureIDs(fs []domain.Feature) []string {
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
	}
	return ids
}

// ResolveBlockHandler resolves the block between two intersections.
func ResolveBlockHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body blockRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		if err := validateBody(body); err != nil {
			return errBadRequest(c, err.Error())
		}

		block, err := deps.Blocks.Resolve(c.UserContext(), body.toDomain())
		if err != nil {
			metrics.BlockResolutions.WithLabelValues("failed").Inc()
			return respondError(c, err)
		}
		metrics.BlockResolutions.WithLabelValues("resolved").Inc()
		return c.JSON(newBlockResponse(block))
	}
}

type linkRequest struct {
	Ways  []domain.Feature `json:"ways" validate:"required,min=1"`
	Nodes []domain.Feature `json:"nodes" validate:"len=2"`
}

// LinkBlockHandler chains caller-supplied ways between two nodes.
func LinkBlockHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body linkRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		if err := validateBody(body); err != nil {
			return errBadRequest(c, err.Error())
		}

		ways, err := deps.Blocks.Link(c.UserContext(), body.Ways, body.Nodes)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(domain.FeatureCollection{Features: ways})
	}
}

type aroundRequest struct {
	Lat          float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon          float64 `json:"lon" validate:"gte=-180,lte=180"`
	RadiusMeters float64 `json:"radius_meters" validate:"gt=0,lte=10000"`
}

type featureRequest struct {
	Bounds     []float64      `json:"bounds" validate:"required_without=Around,omitempty,len=4"`
	Around     *aroundRequest `json:"around"`
	Kinds      []string       `json:"kinds" validate:"omitempty,dive,oneof=node way relation"`
	Filters    []string       `json:"filters" validate:"omitempty,max=20,dive,max=500"`
	CellSizeKm float64        `json:"cell_size_km" validate:"omitempty,gte=0.1,lte=500"`
}

func (r featureRequest) toQuery() usecases.FeatureQuery {
	q := usecases.FeatureQuery{
		Kinds:      r.Kinds,
		Filters:    r.Filters,
		CellSizeKm: r.CellSizeKm,
	}
	if len(r.Bounds) == 4 {
		q.Bounds = domain.NewBoundingBox(r.Bounds[0], r.Bounds[1], r.Bounds[2], r.Bounds[3])
	}
	if r.Around != nil {
		q.Around = &domain.GeoPoint{Lat: r.Around.Lat, Lon: r.Around.Lon}
		q.RadiusMeters = r.Around.RadiusMeters
	}
	return q
}

// FetchFeaturesHandler returns filtered features in a region as GeoJSON.
// bounds are [latMin, lonMin, latMax, lonMax].
func FetchFeaturesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body featureRequest
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		if err := validateBody(body); err != nil {
			return errBadRequest(c, err.Error())
		}

		fc, err := deps.Features.Fetch(c.UserContext(), body.toQuery())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fc, "application/geo+json")
	}
}

// ListServersHandler returns the configured Overpass interpreters in
// rotation order.
func ListServersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		servers := deps.Blocks.Servers()
		urls := make([]string, len(servers))
		for i, s := range servers {
			urls[i] = s.String()
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(fiber.Map{"servers": urls})
	}
}
