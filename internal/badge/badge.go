// Package badge renders the deployment-count badge and the deploy button
// as SVG. The pixel math matches the badges already embedded in countless
// READMEs, so changing it would shift rendered markdown everywhere.
package badge

import (
	"io"
	"strconv"
	"text/template"
)

const (
	badgeLeftText  = "IBM Cloud Deployments"
	buttonLeftText = "Deploy to IBM Cloud"
)

// Layout carries the computed geometry and text of one SVG.
type Layout struct {
	Left       string
	Right      string
	LeftWidth  float64
	RightWidth float64
	TotalWidth float64
	LeftX      float64
	RightX     float64
}

// BadgeLayout computes the flat badge geometry for a deployment count.
func BadgeLayout(count int64) Layout {
	l := Layout{Left: badgeLeftText, Right: strconv.FormatInt(count, 10)}
	l.LeftWidth = float64(len(l.Left))*6.5 + 10
	l.RightWidth = float64(len(l.Right))*7.5 + 10
	l.TotalWidth = l.LeftWidth + l.RightWidth
	l.LeftX = l.LeftWidth/2 + 1
	l.RightX = l.LeftWidth + l.RightWidth/2 - 1
	return l
}

// ButtonLayout computes the deploy-button geometry. The 48px shift makes
// room for the logo block on the left edge.
func ButtonLayout(count int64) Layout {
	l := Layout{Left: buttonLeftText, Right: strconv.FormatInt(count, 10)}
	l.LeftWidth = float64(len(l.Left))*11 + 20
	l.RightWidth = float64(len(l.Right))*12 + 16
	l.TotalWidth = l.LeftWidth + l.RightWidth
	l.LeftX = l.LeftWidth/2 + 1
	l.RightX = l.LeftWidth + l.RightWidth/2 - 1
	l.LeftWidth += 48
	l.TotalWidth += 48
	l.LeftX += 48
	l.RightX += 48
	return l
}

// RenderBadge writes the badge SVG for a deployment count.
func RenderBadge(w io.Writer, count int64) error {
	return badgeTmpl.Execute(w, BadgeLayout(count))
}

// RenderButton writes the deploy-button SVG for a deployment count.
func RenderButton(w io.Writer, count int64) error {
	return buttonTmpl.Execute(w, ButtonLayout(count))
}

var badgeTmpl = template.Must(template.New("badge").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.TotalWidth}}" height="20">
  <linearGradient id="smooth" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <mask id="round">
    <rect width="{{.TotalWidth}}" height="20" rx="3" fill="#fff"/>
  </mask>
  <g mask="url(#round)">
    <rect width="{{.LeftWidth}}" height="20" fill="#555"/>
    <rect x="{{.LeftWidth}}" width="{{.RightWidth}}" height="20" fill="#4c1"/>
    <rect width="{{.TotalWidth}}" height="20" fill="url(#smooth)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="{{.LeftX}}" y="15" fill="#010101" fill-opacity=".3">{{.Left}}</text>
    <text x="{{.LeftX}}" y="14">{{.Left}}</text>
    <text x="{{.RightX}}" y="15" fill="#010101" fill-opacity=".3">{{.Right}}</text>
    <text x="{{.RightX}}" y="14">{{.Right}}</text>
  </g>
</svg>
`))

var buttonTmpl = template.Must(template.New("button").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.TotalWidth}}" height="40">
  <linearGradient id="smooth" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <mask id="round">
    <rect width="{{.TotalWidth}}" height="40" rx="5" fill="#fff"/>
  </mask>
  <g mask="url(#round)">
    <rect width="48" height="40" fill="#152935"/>
    <rect x="48" width="{{.LeftWidth}}" height="40" fill="#325c80"/>
    <rect x="{{.LeftWidth}}" width="{{.RightWidth}}" height="40" fill="#264a60"/>
    <rect width="{{.TotalWidth}}" height="40" fill="url(#smooth)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="18">
    <text x="24" y="27" font-size="20">&#9729;</text>
    <text x="{{.LeftX}}" y="26" fill="#010101" fill-opacity=".3">{{.Left}}</text>
    <text x="{{.LeftX}}" y="25">{{.Left}}</text>
    <text x="{{.RightX}}" y="26" fill="#010101" fill-opacity=".3">{{.Right}}</text>
    <text x="{{.RightX}}" y="25">{{.Right}}</text>
  </g>
</svg>
`))
