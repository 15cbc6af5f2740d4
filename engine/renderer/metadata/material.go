package metadata

import "github.com/spaghettifunk/morphix/engine/math"

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

type MaterialReference struct {
	ReferenceCount uint64
	Material       *Material
	AutoRelease    bool
}

/**
 * @brief Material configuration typically loaded from
 * a file or created in code to load a material from.
 */
type MaterialConfig struct {
	/** @brief The name of the material. */
	Name string
	/** @brief Indicates if the material should be automatically released when no references to it remain. */
	AutoRelease bool
	/** @brief The diffuse colour of the material. */
	DiffuseColour math.Vec4
	/** @brief The shininess of the material. */
	Shininess float32
	/** @brief Forces the alpha channel to 1. */
	Opaque bool
}

/**
 * @brief A material, which represents various properties
 * of a surface in the world such as colour and shininess.
 */
type Material struct {
	/** @brief The material id. */
	ID uint32
	/** @brief The material generation. Incremented every time the material is changed. */
	Generation uint32
	/** @brief The material name. */
	Name string
	/** @brief The diffuse colour. */
	DiffuseColour math.Vec4
	/** @brief The material shininess, determines how concentrated the specular lighting is. */
	Shininess float32
}
