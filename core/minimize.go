package core

import "math"

// minimizeBounded finds a local minimum of f on [lo, hi] using Brent's
// bound-constrained method: golden-section search with parabolic
// interpolation steps where the fit is trustworthy. xatol is the absolute
// tolerance on the minimizer location; maxEval caps function evaluations
// so a pathological objective cannot stall a screening pass.
func minimizeBounded(f func(float64) float64, lo, hi, xatol float64, maxEval int) (x, fx float64) {
	const goldenMean = 0.3819660112501051 // (3 - sqrt(5)) / 2
	sqrtEps := math.Sqrt(2.2e-16)

	a, b := lo, hi
	xf := a + goldenMean*(b-a)
	nfc, fulc := xf, xf
	rat, e := 0.0, 0.0
	fx = f(xf)
	evals := 1
	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xatol/3.0
	tol2 := 2.0 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true
		if math.Abs(e) > tol1 {
			// Try a parabola through (xf, nfc, fulc).
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2.0 * (q - r)
			if q > 0.0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat
			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x = xf + rat
				if (x-a) < tol2 || (b-x) < tol2 {
					rat = math.Copysign(tol1, xm-xf)
					if xm == xf {
						rat = tol1
					}
				}
			} else {
				golden = true
			}
		}
		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		step := math.Copysign(math.Max(math.Abs(rat), tol1), rat)
		if rat == 0 {
			step = tol1
		}
		x = xf + step
		fu := f(x)
		evals++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xatol/3.0
		tol2 = 2.0 * tol1

		if evals >= maxEval {
			break
		}
	}

	return xf, fx
}
