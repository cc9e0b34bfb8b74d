package resource

// Int is the scalar resource algebra: a bare unit count, used for
// simple fungible pools (e.g. compute-context slots, event slots).
type Int struct {
	X int64
}

// IntAlgebra implements Algebra[Int].
type IntAlgebra struct{}

func (IntAlgebra) IsEmpty(v Int) bool { return v.X == 0 }

func (IntAlgebra) Reserve(have, req Int) (d, r Int, ok bool) {
	if have.X < req.X {
		return Int{}, Int{}, false
	}
	d = Int{X: req.X}
	r = Int{X: have.X - req.X}
	return d, r, true
}

func (IntAlgebra) Add(a, b Int) Int { return Int{X: a.X + b.X} }
func (IntAlgebra) Sub(a, b Int) Int { return Int{X: a.X - b.X} }
func (IntAlgebra) Less(a, b Int) bool { return a.X < b.X }

func (a IntAlgebra) FreeInto(pool []Object[Int], parentID int64, v Int) []Object[Int] {
	return freeIntoSingleton(pool, parentID, v, a.Add)
}

var _ Algebra[Int] = IntAlgebra{}
