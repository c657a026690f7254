package catalog

// GraphQL operation texts. Handles and cursors travel as variables; sort key
// and direction are enum literals and are interpolated from a validated Sort
// value only.

const collectionProductsQuery = `
query getCollectionProducts($handle: String!) {
  collectionByHandle(handle: $handle) {
    products(first: %d, sortKey: %s, reverse: %t) {
      edges {
        node {
          id
          title
          handle
          productType
          availableForSale
          priceRange {
            minVariantPrice { amount currencyCode }
          }
          images(first: 1) {
            edges { node { url altText } }
          }
          variants(first: 1) {
            edges {
              node {
                id
                availableForSale
                price { amount currencyCode }
                selectedOptions { name value }
              }
            }
          }
        }
      }
    }
  }
}`

const collectionsQuery = `
query getCollections {
  collections(first: 10) {
    edges {
      node {
        id
        title
        handle
        image { url altText }
      }
    }
  }
}`

const productDetailQuery = `
query getProductDetails($handle: String!) {
  productByHandle(handle: $handle) {
    id
    title
    handle
    description
    descriptionHtml
    productType
    availableForSale
    options { name values }
    priceRange {
      minVariantPrice { amount currencyCode }
      maxVariantPrice { amount currencyCode }
    }
    images(first: 20) {
      edges { node { url altText } }
    }
  }
}`

const productVariantsQuery = `
query getProductVariants($handle: String!, $cursor: String) {
  productByHandle(handle: $handle) {
    variants(first: %d, after: $cursor) {
      pageInfo { hasNextPage endCursor }
      edges {
        node {
          id
          title
          availableForSale
          price { amount currencyCode }
          selectedOptions { name value }
          image { url altText }
        }
      }
    }
  }
}`

const searchQuery = `
query searchProducts($query: String!) {
  products(first: 5, query: $query) {
    edges {
      node {
        id
        title
        handle
        images(first: 1) {
          edges { node { url altText } }
        }
        priceRange {
          minVariantPrice { amount currencyCode }
        }
      }
    }
  }
}`
