package hardware

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	hw "github/chapool/go-hardware-signer/internal/hardware"
)

type variantCapabilities struct {
	Chain        string          `json:"chain"`
	Vendor       string          `json:"vendor"`
	Capabilities []hw.Capability `json:"capabilities"`
}

// GetCapabilitiesRoute 查询所有已注册设备组合支持的操作
func GetCapabilitiesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hardware.GET("/capabilities", getCapabilitiesHandler(s))
}

func getCapabilitiesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		variants := s.Drivers.Variants()
		sort.Slice(variants, func(i, j int) bool {
			if variants[i][0] != variants[j][0] {
				return variants[i][0] < variants[j][0]
			}
			return variants[i][1] < variants[j][1]
		})

		out := make([]variantCapabilities, 0, len(variants))
		for _, v := range variants {
			out = append(out, variantCapabilities{
				Chain:        v[0],
				Vendor:       v[1],
				Capabilities: hw.Capabilities(hw.Chain(v[0]), hw.Vendor(v[1])),
			})
		}

		return c.JSON(http.StatusOK, out)
	}
}
