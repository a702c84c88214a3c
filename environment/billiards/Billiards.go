// Package billiards implements a small billiards table rendered to RGB
// frames. The agent pushes the white cue ball around a table with a
// number of coloured object balls; every collision of the cue ball with
// an object ball is rewarded. Physics are simulated with Box2D and
// frames are rasterised with gg, so the environment produces frames of
// any size without external dependencies.
package billiards

import (
	"fmt"
	"image/color"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"github.com/samuelfneumann/predictivenet/environment"
	ts "github.com/samuelfneumann/predictivenet/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const (
	FPS float64 = 30

	// Pixels per Box2D unit
	Scale float64 = 10.0

	// Velocity change of a push, in table lengths per second
	PushSpeed float64 = 0.75

	// Pushes combined with FIRE are this much stronger
	FireBoost float64 = 2.0

	Restitution    float64 = 0.9
	LinearDamping  float64 = 0.6
	BallDensity    float64 = 1.0
	MinBallRadius  float64 = 1.5 // In pixels
	VelocityIters  int     = 6
	PositionIters  int     = 2
	DefaultBalls   int     = 3
	DefaultCutoff  int     = 1000
	MinFrameHeight int     = 20
	MinFrameWidth  int     = 20
)

var (
	feltColour   = color.RGBA{R: 22, G: 99, B: 55, A: 255}
	cueColour    = color.RGBA{R: 245, G: 245, B: 240, A: 255}
	objectColors = []color.RGBA{
		{R: 220, G: 40, B: 40, A: 255},
		{R: 240, G: 200, B: 30, A: 255},
		{R: 40, G: 70, B: 200, A: 255},
		{R: 120, G: 40, B: 160, A: 255},
		{R: 240, G: 120, B: 20, A: 255},
	}
)

// directions maps each Atari action to the direction the cue ball is
// pushed in, in Box2D coordinates (y up). Actions without a direction
// other than FIRE do nothing; FIRE alone pushes the cue ball along its
// current velocity.
var directions = [][2]float64{
	{0, 0},   // NOOP
	{0, 0},   // FIRE
	{0, 1},   // UP
	{1, 0},   // RIGHT
	{-1, 0},  // LEFT
	{0, -1},  // DOWN
	{1, 1},   // UPRIGHT
	{-1, 1},  // UPLEFT
	{1, -1},  // DOWNRIGHT
	{-1, -1}, // DOWNLEFT
	{0, 1},   // UPFIRE
	{1, 0},   // RIGHTFIRE
	{-1, 0},  // LEFTFIRE
	{0, -1},  // DOWNFIRE
	{1, 1},   // UPRIGHTFIRE
	{-1, 1},  // UPLEFTFIRE
	{1, -1},  // DOWNRIGHTFIRE
	{-1, -1}, // DOWNLEFTFIRE
}

// fires returns whether action includes FIRE
func fires(action int) bool {
	return action == 1 || action >= 10
}

// Config describes a billiards table
type Config struct {
	Height, Width int // Frame size in pixels
	Balls         int // Object balls on the table
	EpisodeCutoff int // Steps per episode, unlimited if <= 0
}

// DefaultConfig returns the configuration of an Atari sized table
func DefaultConfig() Config {
	return Config{
		Height:        210,
		Width:         160,
		Balls:         DefaultBalls,
		EpisodeCutoff: DefaultCutoff,
	}
}

// Validate returns an error if the Config cannot describe a table
func (c Config) Validate() error {
	if c.Height < MinFrameHeight || c.Width < MinFrameWidth {
		return fmt.Errorf("validate: frame too small \n\twant(>= %vx%v) "+
			"\n\thave(%vx%v)", MinFrameHeight, MinFrameWidth, c.Height,
			c.Width)
	}
	if c.Balls < 0 || c.Balls > len(objectColors) {
		return fmt.Errorf("validate: number of object balls must be in "+
			"[0, %v] \n\thave(%v)", len(objectColors), c.Balls)
	}
	return nil
}

// contactDetector counts collisions between the cue ball and the
// object balls
type contactDetector struct {
	env *Billiards
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	a := contact.GetFixtureA().GetBody()
	b := contact.GetFixtureB().GetBody()
	if a != c.env.cue && b != c.env.cue {
		return
	}
	for _, ball := range c.env.balls {
		if ball == a || ball == b {
			c.env.hits++
		}
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {}
func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}
func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
}

// Billiards implements the environment.Environment interface
type Billiards struct {
	environment.Ender
	config Config

	world  box2d.B2World
	cue    *box2d.B2Body
	balls  []*box2d.B2Body
	radius float64 // Box2D units
	hits   int

	rng      *rand.Rand
	discount float64
	prevStep ts.TimeStep
}

// New returns a new billiards environment and its first TimeStep
func New(c Config, discount float64, seed uint64) (*Billiards,
	ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	radius := math.Max(MinBallRadius,
		float64(min(c.Height, c.Width))/16.0) / Scale

	b := &Billiards{
		Ender:    environment.NewStepLimit(c.EpisodeCutoff),
		config:   c,
		radius:   radius,
		rng:      rand.New(rand.NewSource(seed)),
		discount: discount,
	}

	step, err := b.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return b, step, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// tableSize returns the width and height of the table in Box2D units
func (b *Billiards) tableSize() (float64, float64) {
	return float64(b.config.Width) / Scale, float64(b.config.Height) / Scale
}

// Reset resets the environment to a new random arrangement of balls
func (b *Billiards) Reset() (ts.TimeStep, error) {
	b.world = box2d.MakeB2World(box2d.B2Vec2{X: 0, Y: 0})
	b.world.SetContactListener(&contactDetector{b})
	b.hits = 0

	W, H := b.tableSize()

	// Cushions
	corners := [][2]float64{{0, 0}, {0, H}, {W, H}, {W, 0}}
	for i := range corners {
		cushionDef := box2d.NewB2BodyDef()
		cushionDef.Type = 0 // Static body
		cushion := b.world.CreateBody(cushionDef)

		next := corners[(i+1)%len(corners)]
		shape := box2d.NewB2EdgeShape()
		shape.Set(box2d.MakeB2Vec2(corners[i][0], corners[i][1]),
			box2d.MakeB2Vec2(next[0], next[1]))

		fix := box2d.MakeB2FixtureDef()
		fix.Shape = shape
		fix.Restitution = Restitution
		cushion.CreateFixtureFromDef(&fix)
	}

	// Balls are placed on a grid of cells wider than a ball so that no
	// two balls start touching
	cols := int(W / (3 * b.radius))
	rows := int(H / (3 * b.radius))
	cells := b.rng.Perm(cols * rows)
	if len(cells) < b.config.Balls+1 {
		return ts.TimeStep{}, fmt.Errorf("reset: table too small for %v "+
			"balls", b.config.Balls+1)
	}

	place := func(cell int) (float64, float64) {
		x := (float64(cell%cols) + 0.5) * (W / float64(cols))
		y := (float64(cell/cols) + 0.5) * (H / float64(rows))
		return x, y
	}

	b.cue = b.newBall(place(cells[0]))
	b.balls = make([]*box2d.B2Body, b.config.Balls)
	for i := range b.balls {
		b.balls[i] = b.newBall(place(cells[i+1]))
	}

	obs, err := b.observe()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}
	b.prevStep = ts.New(ts.First, 0, b.discount, obs, 0)
	return b.prevStep, nil
}

// newBall adds a ball centred at (x, y) to the table
func (b *Billiards) newBall(x, y float64) *box2d.B2Body {
	def := box2d.MakeB2BodyDef()
	def.Type = 2 // Dynamic body
	def.Position = box2d.MakeB2Vec2(x, y)
	def.LinearDamping = LinearDamping
	def.Bullet = true
	body := b.world.CreateBody(&def)

	shape := box2d.NewB2CircleShape()
	shape.M_radius = b.radius

	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = BallDensity
	fix.Friction = 0.0
	fix.Restitution = Restitution
	body.CreateFixtureFromDef(&fix)

	return body
}

// Step takes one action in the environment
func (b *Billiards) Step(action int) (ts.TimeStep, bool, error) {
	if action < 0 || action >= len(directions) {
		return ts.TimeStep{}, true, fmt.Errorf("step: illegal action "+
			"\n\twant([0, %v)) \n\thave(%v)", len(directions), action)
	}

	W, H := b.tableSize()
	speed := PushSpeed * math.Min(W, H)
	if fires(action) {
		speed *= FireBoost
	}

	dir := directions[action]
	if action == 1 {
		vel := b.cue.GetLinearVelocity()
		if norm := math.Hypot(vel.X, vel.Y); norm > 0 {
			dir = [2]float64{vel.X / norm, vel.Y / norm}
		}
	} else if norm := math.Hypot(dir[0], dir[1]); norm > 0 {
		dir = [2]float64{dir[0] / norm, dir[1] / norm}
	}

	mass := b.cue.GetMass()
	impulse := box2d.MakeB2Vec2(dir[0]*speed*mass, dir[1]*speed*mass)
	b.cue.ApplyLinearImpulse(impulse, b.cue.GetPosition(), true)

	b.hits = 0
	b.world.Step(1.0/FPS, VelocityIters, PositionIters)

	obs, err := b.observe()
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	t := ts.New(ts.Mid, float64(b.hits), b.discount, obs,
		b.prevStep.Number+1)
	last := b.End(&t)
	b.prevStep = t

	return t, last, nil
}

// Positions returns the centre of the cue ball followed by the centres
// of the object balls, in pixels
func (b *Billiards) Positions() [][2]float64 {
	positions := make([][2]float64, 0, len(b.balls)+1)
	for _, ball := range append([]*box2d.B2Body{b.cue}, b.balls...) {
		pos := ball.GetPosition()
		positions = append(positions, b.toPixel(pos.X, pos.Y))
	}
	return positions
}

// toPixel converts Box2D coordinates to pixel coordinates. Pixel rows
// grow downward while the Box2D y axis points up.
func (b *Billiards) toPixel(x, y float64) [2]float64 {
	return [2]float64{x * Scale, float64(b.config.Height) - y*Scale}
}

// Render draws the table onto a new gg context
func (b *Billiards) Render() *gg.Context {
	dc := gg.NewContext(b.config.Width, b.config.Height)
	dc.SetColor(feltColour)
	dc.Clear()

	radius := b.radius * Scale
	for i, ball := range b.balls {
		pos := ball.GetPosition()
		px := b.toPixel(pos.X, pos.Y)
		dc.DrawCircle(px[0], px[1], radius)
		dc.SetColor(objectColors[i])
		dc.Fill()
	}

	pos := b.cue.GetPosition()
	px := b.toPixel(pos.X, pos.Y)
	dc.DrawCircle(px[0], px[1], radius)
	dc.SetColor(cueColour)
	dc.Fill()

	return dc
}

// observe renders the table into a flattened height x width x channel
// frame with values in [0, 1]
func (b *Billiards) observe() (*mat.VecDense, error) {
	img := b.Render().Image()
	bounds := img.Bounds()
	if bounds.Dx() != b.config.Width || bounds.Dy() != b.config.Height {
		return nil, fmt.Errorf("observe: rendered frame has size %vx%v "+
			"\n\twant(%vx%v)", bounds.Dy(), bounds.Dx(), b.config.Height,
			b.config.Width)
	}

	const channels = 3
	frame := make([]float64, b.config.Height*b.config.Width*channels)
	for y := 0; y < b.config.Height; y++ {
		for x := 0; x < b.config.Width; x++ {
			r, g, bl, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*b.config.Width + x) * channels
			frame[i] = float64(r) / 0xffff
			frame[i+1] = float64(g) / 0xffff
			frame[i+2] = float64(bl) / 0xffff
		}
	}
	return mat.NewVecDense(len(frame), frame), nil
}

// SavePNG writes the current frame to a PNG file
func (b *Billiards) SavePNG(path string) error {
	return b.Render().SavePNG(path)
}

// CurrentTimeStep returns the current timestep in the environment
func (b *Billiards) CurrentTimeStep() ts.TimeStep {
	return b.prevStep
}

// ActionMeanings returns the names of the actions, which follow the
// Atari action set
func (b *Billiards) ActionMeanings() []string {
	return environment.AtariActionMeanings
}

// FrameSize returns the height and width of rendered frames
func (b *Billiards) FrameSize() (int, int) {
	return b.config.Height, b.config.Width
}

// Close implements the environment.Environment interface. Billiards
// holds no external resources.
func (b *Billiards) Close() error {
	return nil
}
