package param

// Point3d is a location in 3D space
type Point3d struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

// Vector3d is a direction and magnitude in 3D space
type Vector3d struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

// Plane is an oriented frame
type Plane struct {
	Origin Point3d  `json:"Origin"`
	XAxis  Vector3d `json:"XAxis"`
	YAxis  Vector3d `json:"YAxis"`
	ZAxis  Vector3d `json:"ZAxis"`
}

// Line is a bounded segment between two points
type Line struct {
	From Point3d `json:"From"`
	To   Point3d `json:"To"`
}

// Interval is a numeric domain
type Interval struct {
	T0 float64 `json:"T0"`
	T1 float64 `json:"T1"`
}

// Colour is an 8-bit ARGB colour
type Colour struct {
	A uint8 `json:"A"`
	R uint8 `json:"R"`
	G uint8 `json:"G"`
	B uint8 `json:"B"`
}
