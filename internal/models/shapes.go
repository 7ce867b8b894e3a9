package models

type RouteShapeResponse struct {
	RouteID   string   `json:"routeId"`
	ShortName string   `json:"shortName,omitempty"`
	LongName  string   `json:"longName,omitempty"`
	Color     string   `json:"color"`
	TextColor string   `json:"textColor,omitempty"`
	Polylines []string `json:"polylines"`
}
